package postgres

import "github.com/repostsleuth/sleuth/internal/storage/migrations"

// schemaMigrations is the ordered PostgreSQL schema history. Versions line
// up with the SQLite history so both report the same schema level.
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "Create summons and post tables",
		Up: `
CREATE TABLE IF NOT EXISTS summons (
    id BIGSERIAL PRIMARY KEY,
    post_id TEXT NOT NULL,
    comment_id TEXT NOT NULL UNIQUE,
    requestor TEXT NOT NULL DEFAULT '',
    comment_body TEXT NOT NULL DEFAULT '',
    subreddit TEXT NOT NULL DEFAULT '',
    summons_received_at TIMESTAMPTZ NOT NULL,
    comment_reply TEXT,
    comment_reply_id TEXT,
    summons_replied_at TIMESTAMPTZ,
    CHECK ((comment_reply IS NULL) = (summons_replied_at IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_summons_unreplied ON summons(summons_received_at) WHERE summons_replied_at IS NULL;

CREATE TABLE IF NOT EXISTS posts (
    id BIGSERIAL PRIMARY KEY,
    post_id TEXT NOT NULL UNIQUE,
    post_type TEXT NOT NULL CHECK (post_type IN ('image', 'link', 'text', 'video', 'unsupported')),
    subreddit TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    url_hash TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    title VARCHAR(500) NOT NULL DEFAULT '',
    permalink TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    ingested_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_url_hash ON posts(url_hash);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
`,
		Down: `
DROP TABLE IF EXISTS posts;
DROP TABLE IF EXISTS summons;
`,
	},
	{
		Version:     2,
		Description: "Create monitored sub, watch and meme template tables",
		Up: `
CREATE TABLE IF NOT EXISTS monitored_subs (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT FALSE,
    repost_only BOOLEAN NOT NULL DEFAULT TRUE,
    same_sub_only BOOLEAN NOT NULL DEFAULT TRUE,
    target_days_old INTEGER NOT NULL DEFAULT 180,
    meme_filter BOOLEAN NOT NULL DEFAULT FALSE,
    target_hamming INTEGER NOT NULL DEFAULT 0,
    target_annoy DOUBLE PRECISION NOT NULL DEFAULT 0,
    target_image_match INTEGER NOT NULL DEFAULT 92,
    target_image_meme_match INTEGER NOT NULL DEFAULT 97,
    check_image_posts BOOLEAN NOT NULL DEFAULT TRUE,
    check_link_posts BOOLEAN NOT NULL DEFAULT TRUE,
    added_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_monitored_subs_name ON monitored_subs(lower(name));

CREATE TABLE IF NOT EXISTS repost_watches (
    id BIGSERIAL PRIMARY KEY,
    post_id TEXT NOT NULL,
    username TEXT NOT NULL,
    response_type TEXT NOT NULL DEFAULT 'message' CHECK (response_type IN ('message', 'comment')),
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    UNIQUE (username, post_id)
);

CREATE INDEX IF NOT EXISTS idx_repost_watches_post ON repost_watches(post_id);

CREATE TABLE IF NOT EXISTS meme_templates (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    example_post TEXT NOT NULL DEFAULT '',
    template_url TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
`,
		Down: `
DROP TABLE IF EXISTS meme_templates;
DROP TABLE IF EXISTS repost_watches;
DROP TABLE IF EXISTS monitored_subs;
`,
	},
	{
		Version:     3,
		Description: "Create event and worker instance tables",
		Up: `
CREATE TABLE IF NOT EXISTS summons_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL,
    summons_id BIGINT NOT NULL DEFAULT 0,
    worker_id TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL CHECK (severity IN ('info', 'warning', 'error', 'critical')),
    message TEXT NOT NULL DEFAULT '',
    data JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_summons_events_summons ON summons_events(summons_id);
CREATE INDEX IF NOT EXISTS idx_summons_events_severity ON summons_events(severity, timestamp);

CREATE TABLE IF NOT EXISTS worker_instances (
    instance_id TEXT PRIMARY KEY,
    hostname TEXT NOT NULL,
    pid INTEGER NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('running', 'stopped')),
    started_at TIMESTAMPTZ NOT NULL,
    last_heartbeat TIMESTAMPTZ NOT NULL,
    version TEXT NOT NULL DEFAULT '',
    metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_worker_instances_status ON worker_instances(status, last_heartbeat);
`,
		Down: `
DROP TABLE IF EXISTS worker_instances;
DROP TABLE IF EXISTS summons_events;
`,
	},
}

// Migrations returns a manager loaded with the PostgreSQL schema history
func Migrations() *migrations.Manager {
	return migrations.NewManager(schemaMigrations...)
}

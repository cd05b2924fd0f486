package sqlite

import "github.com/repostsleuth/sleuth/internal/storage/migrations"

// schemaMigrations is the ordered SQLite schema history
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "Create summons and post tables",
		Up: `
CREATE TABLE IF NOT EXISTS summons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id TEXT NOT NULL,
    comment_id TEXT NOT NULL UNIQUE,
    requestor TEXT NOT NULL DEFAULT '',
    comment_body TEXT NOT NULL DEFAULT '',
    subreddit TEXT NOT NULL DEFAULT '',
    summons_received_at DATETIME NOT NULL,
    comment_reply TEXT,
    comment_reply_id TEXT,
    summons_replied_at DATETIME,
    CHECK ((comment_reply IS NULL) = (summons_replied_at IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_summons_unreplied ON summons(summons_replied_at, summons_received_at);

CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id TEXT NOT NULL UNIQUE,
    post_type TEXT NOT NULL CHECK (post_type IN ('image', 'link', 'text', 'video', 'unsupported')),
    subreddit TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    url_hash TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '' CHECK (length(title) <= 500),
    permalink TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    ingested_at DATETIME NOT NULL
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
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE COLLATE NOCASE,
    active INTEGER NOT NULL DEFAULT 0,
    repost_only INTEGER NOT NULL DEFAULT 1,
    same_sub_only INTEGER NOT NULL DEFAULT 1,
    target_days_old INTEGER NOT NULL DEFAULT 180,
    meme_filter INTEGER NOT NULL DEFAULT 0,
    target_hamming INTEGER NOT NULL DEFAULT 0,
    target_annoy REAL NOT NULL DEFAULT 0,
    target_image_match INTEGER NOT NULL DEFAULT 92,
    target_image_meme_match INTEGER NOT NULL DEFAULT 97,
    check_image_posts INTEGER NOT NULL DEFAULT 1,
    check_link_posts INTEGER NOT NULL DEFAULT 1,
    added_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS repost_watches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id TEXT NOT NULL,
    username TEXT NOT NULL,
    response_type TEXT NOT NULL DEFAULT 'message' CHECK (response_type IN ('message', 'comment')),
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    UNIQUE (username, post_id)
);

CREATE INDEX IF NOT EXISTS idx_repost_watches_post ON repost_watches(post_id);

CREATE TABLE IF NOT EXISTS meme_templates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL DEFAULT '',
    example_post TEXT NOT NULL DEFAULT '',
    template_url TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
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
    timestamp DATETIME NOT NULL,
    summons_id INTEGER NOT NULL DEFAULT 0,
    worker_id TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL CHECK (severity IN ('info', 'warning', 'error', 'critical')),
    message TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_summons_events_summons ON summons_events(summons_id);
CREATE INDEX IF NOT EXISTS idx_summons_events_timestamp ON summons_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_summons_events_severity ON summons_events(severity, timestamp);

CREATE TABLE IF NOT EXISTS worker_instances (
    instance_id TEXT PRIMARY KEY,
    hostname TEXT NOT NULL,
    pid INTEGER NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('running', 'stopped')),
    started_at DATETIME NOT NULL,
    last_heartbeat DATETIME NOT NULL,
    version TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_worker_instances_status ON worker_instances(status, last_heartbeat);
`,
		Down: `
DROP TABLE IF EXISTS worker_instances;
DROP TABLE IF EXISTS summons_events;
`,
	},
}

// Migrations returns a manager loaded with the SQLite schema history
func Migrations() *migrations.Manager {
	return migrations.NewManager(schemaMigrations...)
}

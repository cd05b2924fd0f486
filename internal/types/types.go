package types

import (
	"fmt"
	"strings"
	"time"
)

// PostType is the closed set of content classifications a post can carry
type PostType string

const (
	PostTypeImage       PostType = "image"
	PostTypeLink        PostType = "link"
	PostTypeText        PostType = "text"
	PostTypeVideo       PostType = "video"
	PostTypeUnsupported PostType = "unsupported"
)

// AllPostTypes lists every valid post type in a stable order
func AllPostTypes() []PostType {
	return []PostType{PostTypeImage, PostTypeLink, PostTypeText, PostTypeVideo, PostTypeUnsupported}
}

// IsValid checks if the post type value is valid
func (t PostType) IsValid() bool {
	switch t {
	case PostTypeImage, PostTypeLink, PostTypeText, PostTypeVideo, PostTypeUnsupported:
		return true
	}
	return false
}

// ParsePostType converts a stored or configured string into a PostType.
// Matching is case-insensitive.
func ParsePostType(s string) (PostType, error) {
	t := PostType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid post type: %q", s)
	}
	return t, nil
}

// Summons is a pending or completed request from a user asking the bot to
// check a post. It is mutated exactly once, when a reply has been delivered.
type Summons struct {
	ID                int64      `json:"id"`
	PostID            string     `json:"post_id"`
	CommentID         string     `json:"comment_id"`
	Requestor         string     `json:"requestor"`
	CommentBody       string     `json:"comment_body"`
	Subreddit         string     `json:"subreddit"`
	SummonsReceivedAt time.Time  `json:"summons_received_at"`
	CommentReply      string     `json:"comment_reply,omitempty"`
	CommentReplyID    string     `json:"comment_reply_id,omitempty"`
	SummonsRepliedAt  *time.Time `json:"summons_replied_at,omitempty"`
}

// Validate checks if the summons has valid field values
func (s *Summons) Validate() error {
	if s.PostID == "" {
		return fmt.Errorf("post_id is required")
	}
	if s.CommentID == "" {
		return fmt.Errorf("comment_id is required")
	}
	// comment_reply and summons_replied_at are set together or not at all
	if (s.CommentReply != "") != (s.SummonsRepliedAt != nil) {
		return fmt.Errorf("comment_reply and summons_replied_at must both be set or both be empty")
	}
	return nil
}

// IsReplied reports whether a reply has been recorded for this summons
func (s *Summons) IsReplied() bool {
	return s.SummonsRepliedAt != nil
}

// MarkReplied records the delivered reply. body must be the body the gateway
// confirmed, not the body that was requested.
func (s *Summons) MarkReplied(body, replyID string, at time.Time) error {
	if s.IsReplied() {
		return fmt.Errorf("summons %d already replied at %s", s.ID, s.SummonsRepliedAt.Format(time.RFC3339))
	}
	if body == "" {
		return fmt.Errorf("reply body is required")
	}
	at = at.UTC()
	s.CommentReply = body
	s.CommentReplyID = replyID
	s.SummonsRepliedAt = &at
	return nil
}

// Latency is the time between the summons arriving and now
func (s *Summons) Latency(now time.Time) time.Duration {
	return now.Sub(s.SummonsReceivedAt)
}

// Post is an ingested content item
type Post struct {
	ID         int64     `json:"id"`
	PostID     string    `json:"post_id"`
	PostType   PostType  `json:"post_type"`
	Subreddit  string    `json:"subreddit"`
	URL        string    `json:"url"`
	URLHash    string    `json:"url_hash"`
	Author     string    `json:"author"`
	Title      string    `json:"title"`
	Permalink  string    `json:"permalink"`
	CreatedAt  time.Time `json:"created_at"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Validate checks if the post has valid field values
func (p *Post) Validate() error {
	if p.PostID == "" {
		return fmt.Errorf("post_id is required")
	}
	if !p.PostType.IsValid() {
		return fmt.Errorf("invalid post type: %s", p.PostType)
	}
	if len(p.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(p.Title))
	}
	return nil
}

// ShortLink returns the canonical short URL for the post
func (p *Post) ShortLink() string {
	return "https://redd.it/" + p.PostID
}

// MonitoredSub is a destination community with its own detection settings
type MonitoredSub struct {
	ID                   int64     `json:"id"`
	Name                 string    `json:"name"`
	Active               bool      `json:"active"`
	RepostOnly           bool      `json:"repost_only"`
	SameSubOnly          bool      `json:"same_sub_only"`
	TargetDaysOld        int       `json:"target_days_old"`
	MemeFilter           bool      `json:"meme_filter"`
	TargetHamming        int       `json:"target_hamming"`
	TargetAnnoy          float64   `json:"target_annoy"`
	TargetImageMatch     int       `json:"target_image_match"`
	TargetImageMemeMatch int       `json:"target_image_meme_match"`
	CheckImagePosts      bool      `json:"check_image_posts"`
	CheckLinkPosts       bool      `json:"check_link_posts"`
	AddedAt              time.Time `json:"added_at"`
}

// DefaultMonitoredSub returns a monitored sub with the bot's default settings.
// Distance thresholds are left at zero; callers set them explicitly.
func DefaultMonitoredSub(name string) *MonitoredSub {
	return &MonitoredSub{
		Name:                 name,
		Active:               false,
		RepostOnly:           true,
		SameSubOnly:          true,
		TargetDaysOld:        180,
		MemeFilter:           false,
		TargetImageMatch:     92,
		TargetImageMemeMatch: 97,
		CheckImagePosts:      true,
		CheckLinkPosts:       true,
	}
}

// Validate checks if the monitored sub has valid field values
func (m *MonitoredSub) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.TargetHamming < 0 {
		return fmt.Errorf("target_hamming cannot be negative (got %d)", m.TargetHamming)
	}
	if m.TargetAnnoy < 0 {
		return fmt.Errorf("target_annoy cannot be negative (got %f)", m.TargetAnnoy)
	}
	if m.TargetImageMatch < 0 || m.TargetImageMatch > 100 {
		return fmt.Errorf("target_image_match must be between 0 and 100 (got %d)", m.TargetImageMatch)
	}
	if m.TargetImageMemeMatch < 0 || m.TargetImageMemeMatch > 100 {
		return fmt.Errorf("target_image_meme_match must be between 0 and 100 (got %d)", m.TargetImageMemeMatch)
	}
	return nil
}

// WatchResponseType is how a watcher is told about a new match
type WatchResponseType string

const (
	WatchResponseMessage WatchResponseType = "message"
	WatchResponseComment WatchResponseType = "comment"
)

// RepostWatch is a user's subscription to future reposts of a post
type RepostWatch struct {
	ID           int64             `json:"id"`
	PostID       string            `json:"post_id"`
	User         string            `json:"user"`
	ResponseType WatchResponseType `json:"response_type"`
	Enabled      bool              `json:"enabled"`
	CreatedAt    time.Time         `json:"created_at"`
}

// MemeTemplate is a known meme image used to tighten image matching
type MemeTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ExamplePost string    `json:"example_post"`
	TemplateURL string    `json:"template_url"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResponseStatus describes how a reply came to be
type ResponseStatus string

const (
	ResponseStatusSuccess ResponseStatus = "success"
	ResponseStatusError   ResponseStatus = "error"
)

// Response is the reply prepared for a summons. Message is replaced with the
// gateway-confirmed body once delivery succeeds.
type Response struct {
	SummonsID int64          `json:"summons_id"`
	Status    ResponseStatus `json:"status"`
	Message   string         `json:"message"`
}

// Stats is the index summary reported by the stats command
type Stats struct {
	PostCount    int
	ByType       map[PostType]int
	Oldest       *time.Time
	RepostsFound int
	Summoned     int
}

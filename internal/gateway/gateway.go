// Package gateway delivers replies and fetches content from the messaging
// platform.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeliveryFailed wraps every failure to deliver a reply. The summons
	// stays unreplied and is retried on a later cycle.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrRateLimited is returned when the platform rejects a request for rate
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound is returned when a comment or post does not exist
	ErrNotFound = errors.New("not found")
)

// APIError is an error reported by the platform API
type APIError struct {
	StatusCode int
	// Code is the platform error code, e.g. THREAD_LOCKED
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// DeliveredReply is what the platform confirmed. Body is the text actually
// posted, signature included.
type DeliveredReply struct {
	Body string
	// CommentID is empty when the reply went out as a private message
	CommentID string
	ViaPM     bool
}

// Comment is a platform comment
type Comment struct {
	ID        string
	Author    string
	Body      string
	PostID    string
	Subreddit string
}

// RawContent is a post as the platform reports it, before classification
type RawContent struct {
	ID        string
	Title     string
	URL       string
	Author    string
	Subreddit string
	Permalink string
	Domain    string
	PostHint  string
	IsSelf    bool
	IsVideo   bool
	CreatedAt time.Time
}

// Gateway is the messaging platform as seen by the summons worker
type Gateway interface {
	// ReplyToComment posts body as a reply to commentID. When the platform
	// refuses the reply and sendPMOnFail is set, the body is sent to the
	// comment's author by private message instead.
	ReplyToComment(ctx context.Context, commentID, body, source string, sendPMOnFail bool) (*DeliveredReply, error)
	SendPrivateMessage(ctx context.Context, recipient, body string) error
	FetchComment(ctx context.Context, commentID string) (*Comment, error)
	FetchContent(ctx context.Context, postID string) (*RawContent, error)
}

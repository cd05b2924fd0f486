package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSignature = "\n\n---\nsig"

type fakeReddit struct {
	mu          sync.Mutex
	tokenCalls  int32
	commentForm []map[string]string
	composeForm []map[string]string

	// commentStatus returns the HTTP status and body for each /api/comment call
	commentStatus func(call int) (int, string)
	commentCalls  int
	infoBody      string
	// infoStatus returns the HTTP status for each /api/info call
	infoStatus func(call int) int
	infoCalls  int
}

func (f *fakeReddit) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		_, _ = w.Write([]byte(`{"access_token": "tok", "expires_in": 3600}`))
	})
	mux.HandleFunc("/api/comment", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.commentCalls++
		call := f.commentCalls
		f.commentForm = append(f.commentForm, flatten(r))
		f.mu.Unlock()

		status, body := http.StatusOK, `{"json": {"errors": [], "data": {"things": [{"kind": "t1", "data": {"id": "reply1"}}]}}}`
		if f.commentStatus != nil {
			status, body = f.commentStatus(call)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/api/compose", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.composeForm = append(f.composeForm, flatten(r))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"json": {"errors": []}}`))
	})
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.infoCalls++
		call := f.infoCalls
		f.mu.Unlock()
		if f.infoStatus != nil {
			if status := f.infoStatus(call); status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
		}
		body := f.infoBody
		if body == "" {
			body = `{"data": {"children": []}}`
		}
		_, _ = w.Write([]byte(body))
	})
	return mux
}

func flatten(r *http.Request) map[string]string {
	out := make(map[string]string)
	for k, v := range r.PostForm {
		out[k] = v[0]
	}
	return out
}

func newTestClient(t *testing.T, f *fakeReddit) *RedditClient {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	retry.MaxBackoff = 5 * time.Millisecond
	retry.Timeout = 5 * time.Second

	return NewRedditClient(RedditConfig{
		ClientID:          "id",
		ClientSecret:      "secret",
		Username:          "bot",
		Password:          "pw",
		UserAgent:         "test",
		BaseURL:           srv.URL,
		AuthURL:           srv.URL + "/auth",
		RequestsPerMinute: 600000,
		Signature:         testSignature,
		Retry:             retry,
	}, zaptest.NewLogger(t))
}

func TestReplyToComment(t *testing.T) {
	f := &fakeReddit{}
	c := newTestClient(t, f)
	ctx := context.Background()

	got, err := c.ReplyToComment(ctx, "abc", "hello", "summons", true)
	require.NoError(t, err)
	assert.Equal(t, "hello"+testSignature, got.Body)
	assert.Equal(t, "reply1", got.CommentID)
	assert.False(t, got.ViaPM)

	_, err = c.ReplyToComment(ctx, "def", "again", "summons", true)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls), "token should be cached")
	require.Len(t, f.commentForm, 2)
	assert.Equal(t, "t1_abc", f.commentForm[0]["thing_id"])
	assert.Equal(t, "hello"+testSignature, f.commentForm[0]["text"])
}

func TestReplyToCommentPlatformBody(t *testing.T) {
	f := &fakeReddit{commentStatus: func(int) (int, string) {
		return http.StatusOK, `{"json": {"errors": [], "data": {"things": [{"data": {"id": "r9", "body": "as posted"}}]}}}`
	}}
	c := newTestClient(t, f)

	got, err := c.ReplyToComment(context.Background(), "abc", "hello", "summons", false)
	require.NoError(t, err)
	assert.Equal(t, "as posted", got.Body)
}

func TestReplyToCommentFallsBackToPM(t *testing.T) {
	f := &fakeReddit{
		commentStatus: func(int) (int, string) {
			return http.StatusOK, `{"json": {"errors": [["THREAD_LOCKED", "that thread is locked", "parent"]]}}`
		},
		infoBody: `{"data": {"children": [{"kind": "t1", "data": {"id": "abc", "author": "alice", "link_id": "t3_p1"}}]}}`,
	}
	c := newTestClient(t, f)

	got, err := c.ReplyToComment(context.Background(), "abc", "hello", "summons", true)
	require.NoError(t, err)
	assert.True(t, got.ViaPM)
	assert.Empty(t, got.CommentID)
	assert.Equal(t, "hello"+testSignature, got.Body)

	require.Len(t, f.composeForm, 1)
	assert.Equal(t, "alice", f.composeForm[0]["to"])
	assert.Equal(t, PMSubject, f.composeForm[0]["subject"])
	assert.Equal(t, 1, f.commentCalls, "refusals are not retried")
}

func TestReplyToCommentRefusedWithoutPM(t *testing.T) {
	f := &fakeReddit{commentStatus: func(int) (int, string) {
		return http.StatusOK, `{"json": {"errors": [["DELETED_COMMENT", "gone", "parent"]]}}`
	}}
	c := newTestClient(t, f)

	_, err := c.ReplyToComment(context.Background(), "abc", "hello", "summons", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "DELETED_COMMENT", apiErr.Code)
	assert.Empty(t, f.composeForm)
}

func TestReplyToCommentNotResentOnServerError(t *testing.T) {
	f := &fakeReddit{commentStatus: func(call int) (int, string) {
		if call == 1 {
			return http.StatusServiceUnavailable, `down`
		}
		return http.StatusOK, `{"json": {"errors": [], "data": {"things": [{"data": {"id": "r2"}}]}}}`
	}}
	c := newTestClient(t, f)

	_, err := c.ReplyToComment(context.Background(), "abc", "hello", "summons", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, 1, f.commentCalls, "a 5xx may hide an accepted comment")
	assert.Empty(t, f.composeForm)
}

func TestReplyToCommentNotResentAfterTimeout(t *testing.T) {
	f := &fakeReddit{commentStatus: func(call int) (int, string) {
		if call == 1 {
			// Accepted, but the response arrives after the client gave up.
			time.Sleep(200 * time.Millisecond)
		}
		return http.StatusOK, `{"json": {"errors": [], "data": {"things": [{"data": {"id": "late"}}]}}}`
	}}
	c := newTestClient(t, f)
	c.retry.cfg.Timeout = 50 * time.Millisecond

	_, err := c.ReplyToComment(context.Background(), "abc", "hello", "summons", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.commentCalls, "only one comment reaches the platform")
	assert.Empty(t, f.composeForm, "a timeout never falls back to PM")
}

func TestFetchContentRetriesServerErrors(t *testing.T) {
	f := &fakeReddit{
		infoStatus: func(call int) int {
			if call < 3 {
				return http.StatusBadGateway
			}
			return http.StatusOK
		},
		infoBody: `{"data": {"children": [{"kind": "t3", "data": {"id": "p1", "subreddit": "aww"}}]}}`,
	}
	c := newTestClient(t, f)

	got, err := c.FetchContent(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "aww", got.Subreddit)
	assert.Equal(t, 3, f.infoCalls)
	assert.Equal(t, CircuitClosed, c.Breaker().State())
}

func TestReplyToCommentRateLimited(t *testing.T) {
	f := &fakeReddit{commentStatus: func(int) (int, string) {
		return http.StatusTooManyRequests, `{}`
	}}
	c := newTestClient(t, f)

	_, err := c.ReplyToComment(context.Background(), "abc", "hello", "summons", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 4, f.commentCalls)
	assert.Empty(t, f.composeForm, "rate limits never fall back to PM")
}

func TestSendPrivateMessage(t *testing.T) {
	f := &fakeReddit{}
	c := newTestClient(t, f)

	require.NoError(t, c.SendPrivateMessage(context.Background(), "bob", "the list"))
	require.Len(t, f.composeForm, 1)
	assert.Equal(t, "bob", f.composeForm[0]["to"])
	assert.Equal(t, "the list"+testSignature, f.composeForm[0]["text"])

	err := c.SendPrivateMessage(context.Background(), "[deleted]", "x")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestFetchContent(t *testing.T) {
	f := &fakeReddit{infoBody: `{"data": {"children": [{"kind": "t3", "data": {
		"id": "p1", "title": "A cat", "url": "https://i.redd.it/cat.jpg", "author": "carol",
		"subreddit": "cats", "permalink": "/r/cats/comments/p1/a_cat/", "domain": "i.redd.it",
		"post_hint": "image", "is_self": false, "is_video": false, "created_utc": 1577836800
	}}]}}`}
	c := newTestClient(t, f)

	got, err := c.FetchContent(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, &RawContent{
		ID:        "p1",
		Title:     "A cat",
		URL:       "https://i.redd.it/cat.jpg",
		Author:    "carol",
		Subreddit: "cats",
		Permalink: "/r/cats/comments/p1/a_cat/",
		Domain:    "i.redd.it",
		PostHint:  "image",
		CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}, got)
}

func TestFetchCommentNotFound(t *testing.T) {
	c := newTestClient(t, &fakeReddit{})

	_, err := c.FetchComment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Minute, zaptest.NewLogger(t))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitOpenFailsFast(t *testing.T) {
	f := &fakeReddit{commentStatus: func(int) (int, string) {
		return http.StatusBadGateway, `bad`
	}}
	c := newTestClient(t, f)
	ctx := context.Background()

	// 4 attempts per call, breaker opens after 5 failures
	_, err := c.ReplyToComment(ctx, "a", "x", "summons", false)
	require.Error(t, err)
	_, err = c.ReplyToComment(ctx, "a", "x", "summons", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, f.commentCalls)
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: ErrRateLimited, want: true},
		{err: context.DeadlineExceeded, want: true},
		{err: context.Canceled, want: false},
		{err: &APIError{StatusCode: 503}, want: true},
		{err: &APIError{StatusCode: 403}, want: false},
		{err: &APIError{StatusCode: 200, Code: "THREAD_LOCKED"}, want: false},
		{err: errors.New("something else"), want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetriableError(tt.err), "%v", tt.err)
	}
}

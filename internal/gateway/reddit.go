package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PMSubject is the subject line of private messages sent by the bot
const PMSubject = "Repost Check"

// RedditConfig configures a RedditClient
type RedditConfig struct {
	ClientID          string
	ClientSecret      string
	Username          string
	Password          string
	UserAgent         string
	BaseURL           string
	AuthURL           string
	RequestsPerMinute int
	Signature         string
	Retry             RetryConfig
}

// RedditClient implements Gateway over the Reddit HTTP API
type RedditClient struct {
	cfg     RedditConfig
	http    *http.Client
	limiter *rate.Limiter
	retry   *retrier
	logger  *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

// refusalCodes are reply rejections that will not succeed on retry. With
// sendPMOnFail the reply is sent privately instead.
var refusalCodes = map[string]bool{
	"THREAD_LOCKED":   true,
	"DELETED_COMMENT": true,
	"TOO_OLD":         true,
	"USER_BLOCKED":    true,
}

// NewRedditClient creates a Reddit client
func NewRedditClient(cfg RedditConfig, logger *zap.Logger) *RedditClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RedditClient{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		retry:   newRetrier(cfg.Retry, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// Breaker exposes the client's circuit breaker, nil when disabled
func (c *RedditClient) Breaker() *CircuitBreaker {
	return c.retry.breaker
}

// ReplyToComment posts body plus the signature as a reply to commentID
func (c *RedditClient) ReplyToComment(ctx context.Context, commentID, body, source string, sendPMOnFail bool) (*DeliveredReply, error) {
	text := body + c.cfg.Signature
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {"t1_" + commentID},
		"text":     {text},
	}

	var resp gjson.Result
	err := c.retry.doPost(ctx, "reply_to_comment", func(ctx context.Context) error {
		var err error
		resp, err = c.call(ctx, http.MethodPost, "/api/comment", form)
		if err != nil {
			return err
		}
		return jsonErrors(resp)
	})

	if err != nil {
		var apiErr *APIError
		if sendPMOnFail && errors.As(err, &apiErr) && refusalCodes[apiErr.Code] {
			c.logger.Info("comment reply refused, falling back to private message",
				zap.String("comment_id", commentID),
				zap.String("code", apiErr.Code),
				zap.String("source", source))
			return c.replyByPM(ctx, commentID, text)
		}
		return nil, fmt.Errorf("%w: reply to %s: %w", ErrDeliveryFailed, commentID, err)
	}

	thing := resp.Get("json.data.things.0.data")
	delivered := &DeliveredReply{Body: text, CommentID: thing.Get("id").String()}
	if b := thing.Get("body"); b.Exists() {
		delivered.Body = b.String()
	}
	c.logger.Debug("reply delivered",
		zap.String("comment_id", commentID),
		zap.String("reply_id", delivered.CommentID),
		zap.String("source", source))
	return delivered, nil
}

func (c *RedditClient) replyByPM(ctx context.Context, commentID, text string) (*DeliveredReply, error) {
	comment, err := c.FetchComment(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("%w: pm fallback for %s: %w", ErrDeliveryFailed, commentID, err)
	}
	if err := c.sendPM(ctx, comment.Author, text); err != nil {
		return nil, fmt.Errorf("%w: pm fallback for %s: %w", ErrDeliveryFailed, commentID, err)
	}
	return &DeliveredReply{Body: text, ViaPM: true}, nil
}

// SendPrivateMessage sends body plus the signature to recipient
func (c *RedditClient) SendPrivateMessage(ctx context.Context, recipient, body string) error {
	if err := c.sendPM(ctx, recipient, body+c.cfg.Signature); err != nil {
		return fmt.Errorf("%w: private message to %s: %w", ErrDeliveryFailed, recipient, err)
	}
	return nil
}

func (c *RedditClient) sendPM(ctx context.Context, recipient, text string) error {
	if recipient == "" || recipient == "[deleted]" {
		return fmt.Errorf("no recipient for private message")
	}
	form := url.Values{
		"api_type": {"json"},
		"to":       {recipient},
		"subject":  {PMSubject},
		"text":     {text},
	}
	return c.retry.doPost(ctx, "send_private_message", func(ctx context.Context) error {
		resp, err := c.call(ctx, http.MethodPost, "/api/compose", form)
		if err != nil {
			return err
		}
		return jsonErrors(resp)
	})
}

// FetchComment looks a comment up by ID
func (c *RedditClient) FetchComment(ctx context.Context, commentID string) (*Comment, error) {
	data, err := c.info(ctx, "t1_"+commentID)
	if err != nil {
		return nil, err
	}
	return &Comment{
		ID:        data.Get("id").String(),
		Author:    data.Get("author").String(),
		Body:      data.Get("body").String(),
		PostID:    strings.TrimPrefix(data.Get("link_id").String(), "t3_"),
		Subreddit: data.Get("subreddit").String(),
	}, nil
}

// FetchContent looks a post up by ID
func (c *RedditClient) FetchContent(ctx context.Context, postID string) (*RawContent, error) {
	data, err := c.info(ctx, "t3_"+postID)
	if err != nil {
		return nil, err
	}
	return &RawContent{
		ID:        data.Get("id").String(),
		Title:     data.Get("title").String(),
		URL:       data.Get("url").String(),
		Author:    data.Get("author").String(),
		Subreddit: data.Get("subreddit").String(),
		Permalink: data.Get("permalink").String(),
		Domain:    data.Get("domain").String(),
		PostHint:  data.Get("post_hint").String(),
		IsSelf:    data.Get("is_self").Bool(),
		IsVideo:   data.Get("is_video").Bool(),
		CreatedAt: time.Unix(data.Get("created_utc").Int(), 0).UTC(),
	}, nil
}

func (c *RedditClient) info(ctx context.Context, fullname string) (gjson.Result, error) {
	var data gjson.Result
	err := c.retry.do(ctx, "info", func(ctx context.Context) error {
		resp, err := c.call(ctx, http.MethodGet, "/api/info?id="+url.QueryEscape(fullname), nil)
		if err != nil {
			return err
		}
		data = resp.Get("data.children.0.data")
		return nil
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to fetch %s: %w", fullname, err)
	}
	if !data.Exists() {
		return gjson.Result{}, fmt.Errorf("%s: %w", fullname, ErrNotFound)
	}
	return data, nil
}

// call performs one authenticated request and returns the parsed body
func (c *RedditClient) call(ctx context.Context, method, path string, form url.Values) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return gjson.Result{}, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return gjson.Result{}, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		c.invalidateToken()
		return gjson.Result{}, &APIError{StatusCode: resp.StatusCode, Message: "unauthorized"}
	case resp.StatusCode == http.StatusNotFound:
		return gjson.Result{}, ErrNotFound
	case resp.StatusCode >= 300:
		return gjson.Result{}, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &APIError{StatusCode: resp.StatusCode, Message: "invalid JSON response"}
	}
	return gjson.ParseBytes(raw), nil
}

// jsonErrors converts an api_type=json error list into an error
func jsonErrors(resp gjson.Result) error {
	first := resp.Get("json.errors.0")
	if !first.Exists() {
		return nil
	}
	code := first.Get("0").String()
	if code == "RATELIMIT" {
		return fmt.Errorf("%w: %s", ErrRateLimited, first.Get("1").String())
	}
	return &APIError{StatusCode: http.StatusOK, Code: code, Message: first.Get("1").String()}
}

// accessToken returns a cached OAuth token, fetching a new one when needed
func (c *RedditClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: "token request rejected"}
	}

	doc := gjson.ParseBytes(raw)
	token := doc.Get("access_token").String()
	if token == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Code: doc.Get("error").String(), Message: "no access token in response"}
	}

	expiresIn := time.Duration(doc.Get("expires_in").Int()) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	c.token = token
	// refresh a minute early
	c.tokenExpiry = c.now().Add(expiresIn - time.Minute)
	return token, nil
}

func (c *RedditClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

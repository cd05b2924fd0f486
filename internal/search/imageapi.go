package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/repostsleuth/sleuth/internal/types"
)

// ImageAPIClient talks to the image similarity service over HTTP
type ImageAPIClient struct {
	baseURL string
	client  *http.Client
}

// NewImageAPIClient creates a client for the service at baseURL
func NewImageAPIClient(baseURL string, timeout time.Duration) *ImageAPIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ImageAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type imageSearchRequest struct {
	PostID          string  `json:"post_id"`
	URL             string  `json:"url"`
	Subreddit       string  `json:"subreddit"`
	TargetHamming   int     `json:"target_hamming_distance"`
	TargetAnnoy     float64 `json:"target_annoy_distance"`
	MemeFilter      bool    `json:"meme_filter"`
	SameSub         bool    `json:"same_sub"`
	DateCutoffHours int     `json:"date_cutoff_hours,omitempty"`
}

// SearchImages asks the service for images within the query thresholds.
// A 503 response or an "no_index" error body maps to ErrNoIndex.
func (c *ImageAPIClient) SearchImages(ctx context.Context, q ImageQuery) (*EngineResult, error) {
	if q.Post == nil {
		return nil, fmt.Errorf("image search: post is required")
	}

	reqBody := imageSearchRequest{
		PostID:        q.Post.PostID,
		URL:           q.Post.URL,
		Subreddit:     q.Post.Subreddit,
		TargetHamming: q.TargetHamming,
		TargetAnnoy:   q.TargetAnnoy,
		MemeFilter:    q.MemeFilter,
		SameSub:       q.SameSub,
	}
	if q.DateCutoff != nil {
		reqBody.DateCutoffHours = int(q.DateCutoff.Hours())
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/images", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build image search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read image search response: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable || gjson.GetBytes(body, "error").String() == "no_index" {
		return nil, ErrNoIndex
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image search returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("image search returned invalid JSON")
	}

	return parseImageSearchResponse(body)
}

func parseImageSearchResponse(body []byte) (*EngineResult, error) {
	doc := gjson.ParseBytes(body)
	result := &EngineResult{
		Hash:          doc.Get("checked_hash").String(),
		TotalSearched: int(doc.Get("total_searched").Int()),
		IndexSize:     int(doc.Get("index_size").Int()),
	}

	var parseErr error
	doc.Get("matches").ForEach(func(_, m gjson.Result) bool {
		p := m.Get("post")
		post := &types.Post{
			PostID:    p.Get("post_id").String(),
			Subreddit: p.Get("subreddit").String(),
			URL:       p.Get("url").String(),
			Author:    p.Get("author").String(),
			Title:     p.Get("title").String(),
			Permalink: p.Get("permalink").String(),
			PostType:  types.PostTypeImage,
		}
		if pt := p.Get("post_type").String(); pt != "" {
			parsed, err := types.ParsePostType(pt)
			if err != nil {
				parseErr = err
				return false
			}
			post.PostType = parsed
		}
		if created := p.Get("created_at").String(); created != "" {
			t, err := time.Parse(time.RFC3339, created)
			if err != nil {
				parseErr = fmt.Errorf("invalid created_at for match %s: %w", post.PostID, err)
				return false
			}
			post.CreatedAt = t.UTC()
		}

		result.Matches = append(result.Matches, types.Match{
			Post:            post,
			HammingDistance: int(m.Get("hamming_distance").Int()),
			AnnoyDistance:   m.Get("annoy_distance").Float(),
			MatchPercent:    m.Get("match_percent").Float(),
		})
		return true
	})
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse image search response: %w", parseErr)
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

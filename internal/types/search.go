package types

import (
	"sort"
	"time"
)

// Match is a single earlier post found to be a duplicate of the checked post
type Match struct {
	Post            *Post   `json:"post"`
	HammingDistance int     `json:"hamming_distance"`
	AnnoyDistance   float64 `json:"annoy_distance"`
	MatchPercent    float64 `json:"match_percent"`
}

// SearchResult is the outcome of a duplicate check. It is built once by
// NewSearchResult and never mutated afterwards.
type SearchResult struct {
	CheckedPost     *Post         `json:"checked_post"`
	CheckedHash     string        `json:"checked_hash,omitempty"`
	Matches         []Match       `json:"matches"`
	TotalSearched   int           `json:"total_searched"`
	TotalSearchTime time.Duration `json:"total_search_time"`
	IndexSize       int           `json:"index_size"`
}

// NewSearchResult copies matches and orders them chronologically so the
// first match is always the earliest sighting.
func NewSearchResult(checked *Post, hash string, matches []Match, totalSearched, indexSize int, elapsed time.Duration) *SearchResult {
	sorted := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Post == nil {
			continue
		}
		sorted = append(sorted, m)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Post.CreatedAt.Before(sorted[j].Post.CreatedAt)
	})
	return &SearchResult{
		CheckedPost:     checked,
		CheckedHash:     hash,
		Matches:         sorted,
		TotalSearched:   totalSearched,
		TotalSearchTime: elapsed,
		IndexSize:       indexSize,
	}
}

// HasMatches reports whether any duplicate was found
func (r *SearchResult) HasMatches() bool {
	return len(r.Matches) > 0
}

// FirstSeen returns the earliest match, or nil when there are none
func (r *SearchResult) FirstSeen() *Match {
	if len(r.Matches) == 0 {
		return nil
	}
	m := r.Matches[0]
	return &m
}

// Searched returns the number of posts the search covered, falling back to
// the index size when the engine did not report a total.
func (r *SearchResult) Searched() int {
	if r.TotalSearched > 0 {
		return r.TotalSearched
	}
	return r.IndexSize
}

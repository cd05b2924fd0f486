package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/repostsleuth/sleuth/internal/types"
)

// Memo computes a value at most once and hands back the same result,
// including the same error, on every later call. It is safe for concurrent use.
type Memo[T any] struct {
	once sync.Once
	fn   func() (T, error)
	val  T
	err  error
}

// NewMemo wraps fn so it runs on the first Get only
func NewMemo[T any](fn func() (T, error)) *Memo[T] {
	return &Memo[T]{fn: fn}
}

// Get returns the memoized value, computing it if needed
func (m *Memo[T]) Get() (T, error) {
	m.once.Do(func() {
		m.val, m.err = m.fn()
		m.fn = nil
	})
	return m.val, m.err
}

// Target is a post being checked together with its lazily computed URL hash
type Target struct {
	Post *types.Post
	hash *Memo[string]
}

// NewTarget wraps post. A URL hash already stored on the post is reused;
// otherwise it is computed from the post URL on first use.
func NewTarget(post *types.Post) *Target {
	return &Target{
		Post: post,
		hash: NewMemo(func() (string, error) {
			if post.URLHash != "" {
				return post.URLHash, nil
			}
			return HashURL(post.URL)
		}),
	}
}

// URLHash returns the normalized URL hash of the target post
func (t *Target) URLHash() (string, error) {
	return t.hash.Get()
}

// trackingParams are dropped from query strings before hashing
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"ref":          true,
	"share_id":     true,
}

// NormalizeURL reduces a link to a canonical form so trivially different
// URLs for the same content compare equal
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		if trackingParams[strings.ToLower(k)] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(host)
	b.WriteString(path)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		vals := query[k]
		sort.Strings(vals)
		for j, v := range vals {
			if j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String(), nil
}

// HashURL returns the hex SHA-256 of the normalized URL
func HashURL(raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

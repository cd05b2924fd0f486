// Package reply turns search results and command outcomes into reply text
package reply

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/repostsleuth/sleuth/internal/commands"
	"github.com/repostsleuth/sleuth/internal/types"
)

// DefaultOverflowThreshold is the largest match list posted publicly
const DefaultOverflowThreshold = 4

// ComposeInput is everything the composer needs for a repost reply
type ComposeInput struct {
	Result  *types.SearchResult
	Command commands.RepostCommand
	// NoLink renders replies without hyperlinks for destinations that forbid them
	NoLink bool
}

// Composition is a composed reply. Private is set when the full answer goes
// to the requester by private message and Public is only a notice.
type Composition struct {
	Public  string
	Private string
}

// Overflowed reports whether the full answer is sent privately
func (c Composition) Overflowed() bool {
	return c.Private != ""
}

// Composer builds reply bodies. It never modifies the search result.
type Composer struct {
	templates *TemplateStore
	overflow  int
}

// NewComposer creates a composer. A threshold <= 0 uses DefaultOverflowThreshold.
func NewComposer(templates *TemplateStore, overflowThreshold int) *Composer {
	if templates == nil {
		templates = NewTemplateStore()
	}
	if overflowThreshold <= 0 {
		overflowThreshold = DefaultOverflowThreshold
	}
	return &Composer{templates: templates, overflow: overflowThreshold}
}

// Compose builds the reply for a repost check
func (c *Composer) Compose(in ComposeInput) (Composition, error) {
	res := in.Result
	if res == nil {
		return Composition{}, fmt.Errorf("compose: search result is required")
	}

	if !res.HasMatches() {
		body, err := c.templates.Render(TmplNoResult, map[string]any{"Total": formatCount(res.Searched())})
		return Composition{Public: body}, err
	}

	postType := types.PostTypeImage
	if in.Command != nil {
		postType = in.Command.PostType()
	} else if res.CheckedPost != nil {
		postType = res.CheckedPost.PostType
	}

	if in.Command == nil || !in.Command.WantsAllMatches() {
		body, err := c.summary(res, postType, in.NoLink)
		return Composition{Public: body}, err
	}

	full, err := c.allMatches(res, in.NoLink)
	if err != nil {
		return Composition{}, err
	}
	if len(res.Matches) <= c.overflow {
		return Composition{Public: full}, nil
	}

	notice, err := c.templates.Render(TmplOverflowNotice, map[string]any{"Count": len(res.Matches)})
	if err != nil {
		return Composition{}, err
	}
	return Composition{Public: notice, Private: full}, nil
}

func (c *Composer) summary(res *types.SearchResult, postType types.PostType, noLink bool) (string, error) {
	first := res.FirstSeen()
	data := map[string]any{
		"Count":          len(res.Matches),
		"OriginalURL":    postLink(first.Post),
		"FirstSubreddit": first.Post.Subreddit,
		"FirstDate":      formatDate(first.Post.CreatedAt),
	}

	var name string
	switch postType {
	case types.PostTypeLink:
		name = TmplLinkShort
		if noLink {
			name = TmplLinkShortNoLink
		}
	case types.PostTypeImage, types.PostTypeText, types.PostTypeVideo, types.PostTypeUnsupported:
		name = TmplImageShort
		if noLink {
			name = TmplImageShortNoLink
		}
	default:
		return "", fmt.Errorf("compose: invalid post type %q", postType)
	}
	return c.templates.Render(name, data)
}

func (c *Composer) allMatches(res *types.SearchResult, noLink bool) (string, error) {
	header, err := c.templates.Render(TmplRepostAll, map[string]any{
		"Count":     len(res.Matches),
		"Searched":  formatCount(res.Searched()),
		"FirstSeen": firstSeen(res.FirstSeen().Post, noLink),
		"Elapsed":   formatElapsed(res.TotalSearchTime),
	})
	if err != nil {
		return "", err
	}
	return header + MarkdownList(res.Matches, noLink), nil
}

// Unsupported is the fixed reply for post types without a duplicate check
func (c *Composer) Unsupported(postType types.PostType) (string, error) {
	return c.templates.Render(TmplUnsupportedPostType, map[string]any{"PostType": string(postType)})
}

// Trouble is the apology sent when a post cannot be ingested
func (c *Composer) Trouble() (string, error) {
	return c.templates.Render(TmplTrouble, nil)
}

// Maintenance is sent to every summons while summons handling is disabled
func (c *Composer) Maintenance() (string, error) {
	return c.templates.Render(TmplMaintenance, nil)
}

// UnknownCommand answers a summons whose command was not understood
func (c *Composer) UnknownCommand() (string, error) {
	return c.templates.Render(TmplUnknownCommand, nil)
}

// WatchOutcome is the result of a watch or unwatch command
type WatchOutcome int

const (
	WatchAdded WatchOutcome = iota
	WatchDuplicate
	WatchRemoved
	WatchNotFound
)

// Watch renders the reply for a watch or unwatch outcome
func (c *Composer) Watch(outcome WatchOutcome, responseType types.WatchResponseType) (string, error) {
	switch outcome {
	case WatchAdded:
		via := "private message"
		if responseType == types.WatchResponseComment {
			via = "comment reply"
		}
		return c.templates.Render(TmplWatchEnabled, map[string]any{"Response": via})
	case WatchDuplicate:
		return c.templates.Render(TmplWatchDuplicate, nil)
	case WatchRemoved:
		return c.templates.Render(TmplWatchDisabled, nil)
	case WatchNotFound:
		return c.templates.Render(TmplWatchNotFound, nil)
	}
	return "", fmt.Errorf("compose: invalid watch outcome %d", outcome)
}

// Stats renders index statistics
func (c *Composer) Stats(s *types.Stats) (string, error) {
	if s == nil {
		return "", fmt.Errorf("compose: stats are required")
	}
	oldest := "n/a"
	if s.Oldest != nil {
		oldest = formatDate(*s.Oldest)
	}
	return c.templates.Render(TmplStats, map[string]any{
		"PostCount": formatCount(s.PostCount),
		"Images":    formatCount(s.ByType[types.PostTypeImage]),
		"Links":     formatCount(s.ByType[types.PostTypeLink]),
		"Video":     formatCount(s.ByType[types.PostTypeVideo]),
		"Text":      formatCount(s.ByType[types.PostTypeText]),
		"Oldest":    oldest,
		"Reposts":   formatCount(s.RepostsFound),
		"Summoned":  formatCount(s.Summoned),
	})
}

// MarkdownList renders one bullet per match, oldest first
func MarkdownList(matches []types.Match, noLink bool) string {
	var b strings.Builder
	for _, m := range matches {
		if m.Post == nil {
			continue
		}
		b.WriteString("* ")
		b.WriteString(formatDate(m.Post.CreatedAt))
		b.WriteString(" - ")
		if noLink {
			b.WriteString("post " + m.Post.PostID)
		} else {
			b.WriteString("[" + strings.TrimPrefix(m.Post.ShortLink(), "https://") + "](" + postLink(m.Post) + ")")
		}
		if m.Post.Subreddit != "" {
			b.WriteString(" in r/" + m.Post.Subreddit)
		}
		if m.MatchPercent > 0 {
			b.WriteString(fmt.Sprintf(" (%.2f%% match)", m.MatchPercent))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func firstSeen(p *types.Post, noLink bool) string {
	text := "r/" + p.Subreddit + " on " + formatDate(p.CreatedAt)
	if noLink {
		return text
	}
	return "[" + text + "](" + postLink(p) + ")"
}

func postLink(p *types.Post) string {
	switch {
	case strings.HasPrefix(p.Permalink, "http"):
		return p.Permalink
	case p.Permalink != "":
		return "https://www.reddit.com" + p.Permalink
	}
	return p.ShortLink()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown date"
	}
	return t.UTC().Format("2006-01-02")
}

func formatElapsed(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64) + "s"
}

// formatCount renders n with thousands separators
func formatCount(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

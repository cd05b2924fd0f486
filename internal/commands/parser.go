package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/repostsleuth/sleuth/internal/types"
)

// Parser turns summons comment bodies into commands
type Parser struct {
	mentionTag    string
	keywordMarker string
}

// NewParser creates a parser that recognizes the given mention tag (e.g.
// "repostsleuthbot") and keyword marker (e.g. "?repost"). Either may be empty.
func NewParser(mentionTag, keywordMarker string) *Parser {
	return &Parser{
		mentionTag:    strings.ToLower(strings.TrimSpace(mentionTag)),
		keywordMarker: strings.ToLower(strings.TrimSpace(keywordMarker)),
	}
}

// StripSummonsTag returns the text following the mention tag, or following
// the keyword marker when no mention is present. Matching is
// case-insensitive.
func (p *Parser) StripSummonsTag(body string) (string, error) {
	if p.mentionTag != "" {
		if idx := indexFold(body, p.mentionTag); idx >= 0 {
			return strings.TrimSpace(body[idx+len(p.mentionTag):]), nil
		}
	}
	if p.keywordMarker != "" {
		if idx := indexFold(body, p.keywordMarker); idx >= 0 {
			return strings.TrimSpace(body[idx+len(p.keywordMarker):]), nil
		}
	}
	return "", fmt.Errorf("%w: no summons tag in %q", ErrInvalidCommand, body)
}

// ParseRoot identifies the root command of a summons body. A bare summons or
// one that starts with flags is a repost check. An unrecognized word returns
// RootUnknown along with ErrInvalidCommand.
func (p *Parser) ParseRoot(body string) (Root, error) {
	root, _, err := p.split(body)
	return root, err
}

// ParseRepostImage parses the flags of an image repost check
func (p *Parser) ParseRepostImage(body string) (*ImageCommand, error) {
	args, err := p.repostArgs(body)
	if err != nil {
		return nil, err
	}

	fs := newFlagSet("image")
	all := fs.Bool("all", false, "return every match")
	meme := fs.Bool("meme", false, "apply the meme filter")
	sameSub := fs.Bool("samesub", false, "only match posts in the same subreddit")
	strictness := fs.Int("strictness", 0, "override hamming distance")
	age := fs.Int("age", 0, "ignore matches older than this many days")

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	cmd := &ImageCommand{
		AllMatches: *all,
		MemeFilter: *meme,
		SameSub:    *sameSub,
	}
	if fs.Changed("strictness") {
		if *strictness < 0 {
			return nil, fmt.Errorf("%w: strictness cannot be negative", ErrInvalidCommand)
		}
		v := *strictness
		cmd.Strictness = &v
	}
	matchAge, err := ageFlag(fs, *age)
	if err != nil {
		return nil, err
	}
	cmd.MatchAge = matchAge
	return cmd, nil
}

// ParseRepostLink parses the flags of a link repost check
func (p *Parser) ParseRepostLink(body string) (*LinkCommand, error) {
	args, err := p.repostArgs(body)
	if err != nil {
		return nil, err
	}

	fs := newFlagSet("link")
	all := fs.Bool("all", false, "return every match")
	sameSub := fs.Bool("samesub", false, "only match posts in the same subreddit")
	age := fs.Int("age", 0, "ignore matches older than this many days")

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	matchAge, err := ageFlag(fs, *age)
	if err != nil {
		return nil, err
	}
	return &LinkCommand{AllMatches: *all, SameSub: *sameSub, MatchAge: matchAge}, nil
}

// ParseRepost parses the repost command matching the post's type
func (p *Parser) ParseRepost(body string, postType types.PostType) (RepostCommand, error) {
	switch postType {
	case types.PostTypeImage:
		return p.ParseRepostImage(body)
	case types.PostTypeLink:
		return p.ParseRepostLink(body)
	case types.PostTypeText, types.PostTypeVideo, types.PostTypeUnsupported:
		return nil, fmt.Errorf("no repost command for post type %s", postType)
	}
	return nil, fmt.Errorf("invalid post type: %q", postType)
}

// split strips the summons tag and separates the root word from its args
func (p *Parser) split(body string) (Root, []string, error) {
	text, err := p.StripSummonsTag(body)
	if err != nil {
		return "", nil, err
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return RootRepost, nil, nil
	}

	first := fields[0]
	if strings.HasPrefix(first, "-") || isFlagWord(first) {
		return RootRepost, fields, nil
	}

	switch normalizeWord(first) {
	case "repost", "check":
		return RootRepost, fields[1:], nil
	case "stats":
		return RootStats, fields[1:], nil
	case "watch":
		return RootWatch, fields[1:], nil
	case "unwatch":
		return RootUnwatch, fields[1:], nil
	}
	return RootUnknown, fields[1:], fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, first)
}

// repostArgs returns the flag tokens of a body. Free text in front of the
// flags ("please check --all") is tolerated.
func (p *Parser) repostArgs(body string) ([]string, error) {
	root, args, err := p.split(body)
	if root == RootUnknown {
		return args, nil
	}
	return args, err
}

// indexFold is a case-insensitive strings.Index for an ASCII needle
func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

// normalizeWord lowercases a word and drops the sigils people type in front
// of commands ("?repost", "!stats")
func normalizeWord(word string) string {
	return strings.ToLower(strings.TrimLeft(word, "?!/"))
}

// flagWords may be written without dashes ("u/bot all")
var flagWords = map[string]bool{"all": true, "meme": true, "samesub": true}

func isFlagWord(word string) bool {
	return flagWords[strings.ToLower(word)]
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	return fs
}

// normalizeArgs keeps only tokens the flag set knows about, so free text and
// unknown flags in a comment are ignored. Bare flag words become long flags.
func normalizeArgs(fs *pflag.FlagSet, args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		tok := args[i]
		if !strings.HasPrefix(tok, "-") {
			if isFlagWord(tok) && fs.Lookup(strings.ToLower(tok)) != nil {
				out = append(out, "--"+strings.ToLower(tok))
			}
			continue
		}

		name := strings.ToLower(strings.TrimLeft(tok, "-"))
		value := ""
		hasValue := false
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name, value, hasValue = name[:eq], tok[strings.IndexByte(tok, '=')+1:], true
		}
		if name == "matching" {
			name = "strictness"
		}

		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if hasValue {
			out = append(out, "--"+name+"="+value)
			continue
		}
		if flag.Value.Type() == "bool" {
			out = append(out, "--"+name)
			continue
		}
		if i+1 < len(args) {
			out = append(out, "--"+name+"="+args[i+1])
			i++
		}
	}
	return out
}

func ageFlag(fs *pflag.FlagSet, days int) (*time.Duration, error) {
	if !fs.Changed("age") {
		return nil, nil
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: age must be a positive number of days", ErrInvalidCommand)
	}
	d := time.Duration(days) * 24 * time.Hour
	return &d, nil
}

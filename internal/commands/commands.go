// Package commands parses the free-text body of a summons comment into a
// root command and, for repost checks, a content-specific flag set.
package commands

import (
	"errors"
	"time"

	"github.com/repostsleuth/sleuth/internal/types"
)

// ErrInvalidCommand is returned when a summons body carries no recognizable
// command. Callers fall back to a default repost check.
var ErrInvalidCommand = errors.New("invalid command")

// Root is the top-level action a summons asks for
type Root string

const (
	RootRepost  Root = "repost"
	RootStats   Root = "stats"
	RootWatch   Root = "watch"
	RootUnwatch Root = "unwatch"
	RootUnknown Root = "unknown"
)

// RepostCommand is the parsed flag set for a repost check. The concrete type
// is *ImageCommand or *LinkCommand.
type RepostCommand interface {
	PostType() types.PostType
	WantsAllMatches() bool
}

// ImageCommand carries the options of an image repost check
type ImageCommand struct {
	AllMatches bool
	// Strictness overrides the destination's hamming distance when set
	Strictness *int
	MemeFilter bool
	SameSub    bool
	// MatchAge ignores matches older than this when set
	MatchAge   *time.Duration
}

func (c *ImageCommand) PostType() types.PostType { return types.PostTypeImage }
func (c *ImageCommand) WantsAllMatches() bool { return c.AllMatches }

// LinkCommand carries the options of a link repost check
type LinkCommand struct {
	AllMatches bool
	SameSub    bool
	MatchAge   *time.Duration
}

func (c *LinkCommand) PostType() types.PostType { return types.PostTypeLink }
func (c *LinkCommand) WantsAllMatches() bool { return c.AllMatches }

// DefaultRepostCommand returns the command used when a body cannot be parsed.
// Post types without a repost check return nil.
func DefaultRepostCommand(postType types.PostType) RepostCommand {
	switch postType {
	case types.PostTypeImage:
		return &ImageCommand{}
	case types.PostTypeLink:
		return &LinkCommand{}
	case types.PostTypeText, types.PostTypeVideo, types.PostTypeUnsupported:
		return nil
	}
	return nil
}

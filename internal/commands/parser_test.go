package commands

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repostsleuth/sleuth/internal/types"
)

func newTestParser() *Parser {
	return NewParser("repostsleuthbot", "?repost")
}

func intPtr(v int) *int { return &v }

func durationPtr(d time.Duration) *time.Duration { return &d }

func TestStripSummonsTag(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "mention", body: "u/RepostSleuthBot --all", want: "--all"},
		{name: "mention mixed case", body: "hey U/REPOSTSLEUTHBOT stats", want: "stats"},
		{name: "mention preferred over keyword", body: "?repost u/repostsleuthbot meme", want: "meme"},
		{name: "keyword fallback", body: "this is a ?Repost all", want: "all"},
		{name: "bare mention", body: "u/repostsleuthbot", want: ""},
		{name: "no tag", body: "great post", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.StripSummonsTag(tt.body)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidCommand))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRoot(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		body    string
		want    Root
		wantErr bool
	}{
		{body: "u/repostsleuthbot", want: RootRepost},
		{body: "u/RepostSleuthBot ?repost all", want: RootRepost},
		{body: "u/repostsleuthbot --all --meme", want: RootRepost},
		{body: "u/repostsleuthbot all", want: RootRepost},
		{body: "u/repostsleuthbot repost", want: RootRepost},
		{body: "u/repostsleuthbot !stats", want: RootStats},
		{body: "u/repostsleuthbot watch", want: RootWatch},
		{body: "u/repostsleuthbot Unwatch", want: RootUnwatch},
		{body: "u/repostsleuthbot is this real", want: RootUnknown, wantErr: true},
		{body: "no summons here", want: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got, err := p.ParseRoot(tt.body)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRepostImage(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name string
		body string
		want *ImageCommand
	}{
		{
			name: "defaults",
			body: "u/repostsleuthbot",
			want: &ImageCommand{},
		},
		{
			name: "bare all word",
			body: "u/RepostSleuthBot ?repost all",
			want: &ImageCommand{AllMatches: true},
		},
		{
			name: "every flag",
			body: "u/repostsleuthbot --all --meme --samesub --strictness 5 --age 30",
			want: &ImageCommand{
				AllMatches: true,
				MemeFilter: true,
				SameSub:    true,
				Strictness: intPtr(5),
				MatchAge:   durationPtr(30 * 24 * time.Hour),
			},
		},
		{
			name: "equals syntax and alias",
			body: "u/repostsleuthbot --matching=0",
			want: &ImageCommand{Strictness: intPtr(0)},
		},
		{
			name: "unknown flags and free text ignored",
			body: "u/repostsleuthbot please --bogus 3 --all thanks",
			want: &ImageCommand{AllMatches: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseRepostImage(tt.body)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRepostImage() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRepostImageInvalidValues(t *testing.T) {
	p := newTestParser()

	for _, body := range []string{
		"u/repostsleuthbot --strictness abc",
		"u/repostsleuthbot --strictness -2",
		"u/repostsleuthbot --age 0",
		"nothing to see",
	} {
		_, err := p.ParseRepostImage(body)
		assert.ErrorIs(t, err, ErrInvalidCommand, body)
	}
}

func TestParseRepostLink(t *testing.T) {
	p := newTestParser()

	got, err := p.ParseRepostLink("u/repostsleuthbot all --samesub --age 7 --meme --strictness 4")
	require.NoError(t, err)

	want := &LinkCommand{AllMatches: true, SameSub: true, MatchAge: durationPtr(7 * 24 * time.Hour)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseRepostLink() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseIsIdempotent(t *testing.T) {
	p := newTestParser()
	body := "u/repostsleuthbot --all --strictness 2 --age 10"

	first, err := p.ParseRepost(body, types.PostTypeImage)
	require.NoError(t, err)
	second, err := p.ParseRepost(body, types.PostTypeImage)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("parsing twice differs (-first +second):\n%s", diff)
	}
}

func TestParseRepostByPostType(t *testing.T) {
	p := newTestParser()

	img, err := p.ParseRepost("u/repostsleuthbot all", types.PostTypeImage)
	require.NoError(t, err)
	assert.IsType(t, &ImageCommand{}, img)
	assert.True(t, img.WantsAllMatches())
	assert.Equal(t, types.PostTypeImage, img.PostType())

	link, err := p.ParseRepost("u/repostsleuthbot", types.PostTypeLink)
	require.NoError(t, err)
	assert.IsType(t, &LinkCommand{}, link)
	assert.False(t, link.WantsAllMatches())

	for _, pt := range []types.PostType{types.PostTypeText, types.PostTypeVideo, types.PostTypeUnsupported, "gif"} {
		_, err := p.ParseRepost("u/repostsleuthbot", pt)
		assert.Error(t, err, pt)
	}
}

func TestDefaultRepostCommand(t *testing.T) {
	assert.Equal(t, &ImageCommand{}, DefaultRepostCommand(types.PostTypeImage))
	assert.Equal(t, &LinkCommand{}, DefaultRepostCommand(types.PostTypeLink))
	assert.Nil(t, DefaultRepostCommand(types.PostTypeVideo))
}

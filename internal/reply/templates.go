package reply

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Template names
const (
	TmplUnsupportedPostType = "unsupported_post_type"
	TmplNoResult            = "repost_no_result"
	TmplImageShort          = "image_repost_short"
	TmplImageShortNoLink    = "image_repost_short_no_link"
	TmplLinkShort           = "link_repost_short"
	TmplLinkShortNoLink     = "link_repost_short_no_link"
	TmplRepostAll           = "repost_all"
	TmplOverflowNotice      = "overflow_notice"
	TmplWatchEnabled        = "watch_enabled"
	TmplWatchDisabled       = "watch_disabled"
	TmplWatchNotFound       = "watch_not_found"
	TmplWatchDuplicate      = "watch_duplicate"
	TmplUnknownCommand      = "unknown_command"
	TmplStats               = "stats"
	TmplTrouble             = "trouble"
	TmplMaintenance         = "maintenance"
)

var defaultTemplates = map[string]string{
	TmplUnsupportedPostType: "Sorry, I don't support this post type right now.  Feel free to check back in the future!",
	TmplNoResult:            "I've seen {{.Total}} posts but have never seen this one. \n\n",
	TmplImageShort:          "I've seen this image {{.Count}} times. The first time I saw it [was here]({{.OriginalURL}})",
	TmplImageShortNoLink:    "I've seen this image {{.Count}} times. The first time I saw it was in r/{{.FirstSubreddit}} on {{.FirstDate}}",
	TmplLinkShort:           "I've seen this link {{.Count}} times. The first time I saw it [was here]({{.OriginalURL}})",
	TmplLinkShortNoLink:     "I've seen this link {{.Count}} times. The first time I saw it was in r/{{.FirstSubreddit}} on {{.FirstDate}}",
	TmplRepostAll:           "**Times Seen:** {{.Count}} \n\n**Total Searched:** {{.Searched}}\n\n**First Saw:** {{.FirstSeen}}\n\n**Search Time:** {{.Elapsed}}\n\nHere are all the instances I've seen:\n\n",
	TmplOverflowNotice:      "I found {{.Count}} matches.  I'm sending them to you via PM to reduce comment spam",
	TmplWatchEnabled:        "I will now watch for matching posts.\n\nIf someone posts this same content I will let you know via {{.Response}}",
	TmplWatchDisabled:       "I have removed your repost watch from this post",
	TmplWatchNotFound:       "I was not able to locate an existing repost watch for this post",
	TmplWatchDuplicate:      "You already have a watch setup for this post",
	TmplUnknownCommand:      "I don't understand your command. You can use '!repost commands' to see a list of commands I understand",
	TmplStats:               "**Total Posts indexed:** {{.PostCount}}\n\n**Image Posts:** {{.Images}}\n\n**Link Posts:** {{.Links}}\n\n**Video Posts:** {{.Video}}\n\n**Text Posts:** {{.Text}}\n\n**Oldest Post:** {{.Oldest}}\n\n**Reposts Found:** {{.Reposts}}\n\n**Times Summoned:** {{.Summoned}}",
	TmplTrouble:             "Sorry, I'm having trouble with this post. Please try again later",
	TmplMaintenance:         "I'm currently down for maintenance, check back in an hour",
}

// TemplateStore compiles and renders named reply templates
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewTemplateStore creates a store seeded with the default reply templates
func NewTemplateStore() *TemplateStore {
	s := &TemplateStore{templates: make(map[string]*template.Template)}
	for name, body := range defaultTemplates {
		if err := s.Register(name, body); err != nil {
			panic(err)
		}
	}
	return s
}

// Register adds or replaces a template. Missing keys fail at render time.
func (s *TemplateStore) Register(name, body string) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = tmpl
	return nil
}

// Render executes the named template with data
func (s *TemplateStore) Render(name string, data any) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return out.String(), nil
}

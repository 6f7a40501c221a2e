package response

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"voicejournal/internal/mood"
)

//go:embed content.yaml
var defaultContent []byte

type toneContent struct {
	Openings []string `yaml:"openings"`
	Closings []string `yaml:"closings"`
}

type moodContent struct {
	Middles       []string `yaml:"middles"`
	Defaults      []string `yaml:"defaults"`
	ScriptOpening string   `yaml:"script_opening"`
	ScriptClosing string   `yaml:"script_closing"`
}

type theme struct {
	Name        string   `yaml:"name"`
	Keywords    []string `yaml:"keywords"`
	Suggestions []string `yaml:"suggestions"`

	pattern *regexp.Regexp
}

// mentioned matches whole keywords so "work" does not fire on "network".
func (t theme) mentioned(text string) bool {
	return t.pattern != nil && t.pattern.MatchString(text)
}

func compileKeywords(keywords []string) *regexp.Regexp {
	alts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k != "" {
			alts = append(alts, regexp.QuoteMeta(k))
		}
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// Content is the canned copy the orchestrator draws from.
type Content struct {
	Tones            map[Tone]toneContent     `yaml:"tones"`
	Moods            map[mood.Tag]moodContent `yaml:"moods"`
	TherapeuticTerms []string                 `yaml:"therapeutic_terms"`
	DenyTerms        []string                 `yaml:"deny_terms"`
	OpeningPhrases   []string                 `yaml:"opening_phrases"`
	ClosingPhrases   []string                 `yaml:"closing_phrases"`
	Themes           []theme                  `yaml:"themes"`
}

// ParseContent decodes and validates YAML content.
func ParseContent(b []byte) (*Content, error) {
	var c Content
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse response content: %w", err)
	}

	for _, t := range Tones {
		tc, ok := c.Tones[t]
		if !ok || len(tc.Openings) == 0 || len(tc.Closings) == 0 {
			return nil, fmt.Errorf("response content: tone %q needs openings and closings", t)
		}
	}
	for _, m := range mood.All {
		mc, ok := c.Moods[m]
		if !ok || len(mc.Middles) == 0 || len(mc.Defaults) == 0 {
			return nil, fmt.Errorf("response content: mood %q needs middles and defaults", m)
		}
	}
	if len(c.TherapeuticTerms) == 0 {
		return nil, fmt.Errorf("response content: therapeutic_terms is empty")
	}

	lower(c.TherapeuticTerms)
	lower(c.DenyTerms)
	lower(c.OpeningPhrases)
	lower(c.ClosingPhrases)
	for i := range c.Themes {
		lower(c.Themes[i].Keywords)
		c.Themes[i].pattern = compileKeywords(c.Themes[i].Keywords)
	}
	return &c, nil
}

func lower(ss []string) {
	for i, s := range ss {
		ss[i] = strings.ToLower(strings.TrimSpace(s))
	}
}

func (c *Content) mood(m mood.Tag) moodContent {
	if mc, ok := c.Moods[m]; ok {
		return mc
	}
	return c.Moods[mood.Neutral]
}

func (c *Content) tone(t Tone) toneContent {
	if tc, ok := c.Tones[t]; ok {
		return tc
	}
	return c.Tones[ToneCalm]
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}

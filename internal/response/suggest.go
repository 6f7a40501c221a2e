package response

import (
	"strings"

	"voicejournal/internal/mood"
)

const (
	maxSuggestions       = 3
	maxThemedSuggestions = 2
)

// Suggestions maps themes found in the transcript to canned suggestions and
// tops them up with the mood defaults. At most two are themed so a mood
// default is always present.
func (o *Orchestrator) Suggestions(transcript string, m mood.Tag) []string {
	text := strings.ToLower(transcript)
	seen := make(map[string]bool)
	out := make([]string, 0, maxSuggestions)

	add := func(s string) bool {
		if s == "" || seen[s] || len(out) >= maxSuggestions {
			return false
		}
		seen[s] = true
		out = append(out, s)
		return true
	}

	themed := 0
	for _, th := range o.content.Themes {
		if themed >= maxThemedSuggestions {
			break
		}
		if !th.mentioned(text) {
			continue
		}
		for _, s := range th.Suggestions {
			if add(s) {
				themed++
				break
			}
		}
	}

	for _, s := range o.content.mood(m).Defaults {
		add(s)
	}
	return out
}

package response

import (
	"regexp"
	"strings"

	"voicejournal/internal/mood"
)

const PauseMarker = "[pause]"

var (
	blankLines   = regexp.MustCompile(`\n\s*\n+`)
	sentenceStop = regexp.MustCompile(`([.!?])(\s+|$)`)
)

// VideoScript turns a reply into the avatar script: blank-line runs collapse
// to one newline, each sentence ends with a pause marker, and the mood's
// scripted opening and closing wrap the text.
func (o *Orchestrator) VideoScript(text string, m mood.Tag) string {
	mc := o.content.mood(m)

	body := strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	body = blankLines.ReplaceAllString(body, "\n")
	body = sentenceStop.ReplaceAllString(body, "$1 "+PauseMarker+"$2")
	body = strings.TrimSpace(body)

	parts := make([]string, 0, 3)
	if mc.ScriptOpening != "" {
		parts = append(parts, mc.ScriptOpening+" "+PauseMarker)
	}
	parts = append(parts, body)
	if mc.ScriptClosing != "" {
		parts = append(parts, mc.ScriptClosing)
	}
	return strings.Join(parts, "\n")
}

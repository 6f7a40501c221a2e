package response

import (
	"strings"
	"unicode"
)

// blend assembles a hybrid reply from thirds of the AI text and the template.
// The middle always comes from the template; the opening and closing come
// from the AI text only when its segment carries a recognizable phrase.
// Every returned segment is non-empty.
func (o *Orchestrator) blend(aiText string, tmpl templateParts) [3]string {
	ai := splitThirds(aiText)

	segs := [3]string{tmpl.opening, tmpl.middle, tmpl.closing}
	if ai[0] != "" && containsAny(strings.ToLower(ai[0]), o.content.OpeningPhrases) {
		segs[0] = ai[0]
	}
	if ai[2] != "" && containsAny(strings.ToLower(ai[2]), o.content.ClosingPhrases) {
		segs[2] = ai[2]
	}
	return segs
}

// splitThirds cuts text into three parts on sentence boundaries when there
// are at least three sentences, otherwise on words. Parts may be empty when
// the text is shorter than three words.
func splitThirds(text string) [3]string {
	units := sentences(text)
	if len(units) < 3 {
		units = strings.Fields(text)
	}

	var out [3]string
	n := len(units)
	if n == 0 {
		return out
	}
	a, b := n/3, 2*n/3
	if n%3 == 2 {
		a, b = n/3+1, 2*n/3+1
	}
	out[0] = strings.Join(units[:a], " ")
	out[1] = strings.Join(units[a:b], " ")
	out[2] = strings.Join(units[b:], " ")
	return out
}

func sentences(text string) []string {
	var out []string
	var cur strings.Builder
	rs := []rune(strings.TrimSpace(text))
	for i, r := range rs {
		cur.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(rs) && !unicode.IsSpace(rs[i+1]) {
			continue
		}
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

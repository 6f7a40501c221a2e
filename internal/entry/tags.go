package entry

import (
	"regexp"
	"strings"
)

const maxTags = 20

// Speech-to-text renders a spoken "hashtag work" either literally or as "#work".
var tagRe = regexp.MustCompile(`(?i)(?:#|\bhash\s?tag\s+)([a-z0-9_]{1,32})`)

// ExtractTags collects lowercase, de-duplicated tags from a transcript.
func ExtractTags(transcript string) []string {
	matches := tagRe.FindAllStringSubmatch(transcript, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		t := strings.ToLower(m[1])
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) >= maxTags {
			break
		}
	}
	return out
}

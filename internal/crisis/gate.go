// Package crisis scores transcripts for self-harm risk and decides whether
// the check-in pipeline may continue.
package crisis

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Level is the action a presentation layer should take.
type Level string

const (
	LevelNone         Level = "none"
	LevelResources    Level = "resources"
	LevelInterstitial Level = "interstitial"
	LevelHalt         Level = "halt"
)

const MaxSeverity = 10

// Policy holds the scoring constants. The thresholds are heuristics and are
// expected to be tuned.
type Policy struct {
	PerMatch       int // severity added per distinct vocabulary match
	ResourcesAt    int
	InterstitialAt int
	HaltAt         int
	FlagAt         int
}

func DefaultPolicy() Policy {
	return Policy{
		PerMatch:       3,
		ResourcesAt:    2,
		InterstitialAt: 5,
		HaltAt:         8,
		FlagAt:         3,
	}
}

// Vocabulary is the fixed risk vocabulary, matched case-insensitively as substrings.
var Vocabulary = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"end my life",
	"end it all",
	"want to die",
	"better off dead",
	"no reason to live",
	"self harm",
	"self-harm",
	"hurt myself",
	"cutting myself",
	"overdose",
	"hopeless",
	"worthless",
	"can't go on",
	"give up on life",
}

// Decision is the structured outcome rendered by the presentation layer.
type Decision struct {
	Level            Level `json:"level"`
	Severity         int   `json:"severity"`
	ShouldHalt       bool  `json:"should_halt"`
	NeedsResources   bool  `json:"needs_resources"`
	ShowInterstitial bool  `json:"show_interstitial"`
}

type Assessment struct {
	Severity   int       `json:"severity"`
	Keywords   []string  `json:"keywords"`
	Snippet    string    `json:"snippet,omitempty"`
	Decision   Decision  `json:"decision"`
	AssessedAt time.Time `json:"assessed_at"`
}

type Gate struct {
	policy     Policy
	vocabulary []string
	now        func() time.Time
}

func NewGate(p Policy) *Gate {
	def := DefaultPolicy()
	if p.PerMatch <= 0 {
		p.PerMatch = def.PerMatch
	}
	if p.ResourcesAt <= 0 {
		p.ResourcesAt = def.ResourcesAt
	}
	if p.InterstitialAt <= 0 {
		p.InterstitialAt = def.InterstitialAt
	}
	if p.HaltAt <= 0 {
		p.HaltAt = def.HaltAt
	}
	if p.FlagAt <= 0 {
		p.FlagAt = def.FlagAt
	}
	// a single match must always reach the resources level
	p.PerMatch = max(p.PerMatch, p.ResourcesAt)
	return &Gate{policy: p, vocabulary: Vocabulary, now: time.Now}
}

func (g *Gate) Policy() Policy { return g.policy }

// Assess scores transcript. It has no side effects.
func (g *Gate) Assess(transcript string) Assessment {
	text := normalize(transcript)

	first := -1
	var keywords []string
	for _, term := range g.vocabulary {
		i := strings.Index(text, term)
		if i < 0 {
			continue
		}
		keywords = append(keywords, term)
		if first < 0 || i < first {
			first = i
		}
	}
	sort.Strings(keywords)

	severity := min(MaxSeverity, len(keywords)*g.policy.PerMatch)
	a := Assessment{
		Severity:   severity,
		Keywords:   keywords,
		Decision:   g.decide(severity),
		AssessedAt: g.now(),
	}
	if first >= 0 {
		a.Snippet = snippet(text, first, 60)
	}
	return a
}

// ShouldFlag reports whether the assessment warrants a persisted CrisisFlag.
// It is independent of the halt decision.
func (g *Gate) ShouldFlag(a Assessment) bool {
	return a.Severity >= g.policy.FlagAt
}

func (g *Gate) decide(severity int) Decision {
	d := Decision{Level: LevelNone, Severity: severity}
	switch {
	case severity >= g.policy.HaltAt:
		d.Level = LevelHalt
	case severity >= g.policy.InterstitialAt:
		d.Level = LevelInterstitial
	case severity >= g.policy.ResourcesAt:
		d.Level = LevelResources
	}
	d.NeedsResources = severity >= g.policy.ResourcesAt
	d.ShowInterstitial = severity >= g.policy.InterstitialAt
	d.ShouldHalt = severity >= g.policy.HaltAt
	return d
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "’", "'")
	return strings.Join(strings.Fields(s), " ")
}

func snippet(text string, at, radius int) string {
	start := max(0, at-radius)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := min(len(text), at+radius)
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	out := strings.TrimSpace(text[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}

// Package response produces the spoken reply for a check-in. It tries the
// generative provider first and degrades to canned templates.
package response

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/cbroglie/mustache"
	"github.com/rs/zerolog"

	"voicejournal/internal/llm"
	"voicejournal/internal/metrics"
	"voicejournal/internal/mood"
)

type Tone string

const (
	ToneCalm         Tone = "calm"
	ToneMotivational Tone = "motivational"
	ToneReflective   Tone = "reflective"
)

var Tones = []Tone{ToneCalm, ToneMotivational, ToneReflective}

func ParseTone(s string) (Tone, bool) {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return ToneCalm, true
	}
	for _, known := range Tones {
		if t == known {
			return t, true
		}
	}
	return "", false
}

type Source string

const (
	SourceAI       Source = "ai"
	SourceHybrid   Source = "hybrid"
	SourceTemplate Source = "template"
)

const (
	// TemplateConfidence is reported when the template is the whole answer.
	TemplateConfidence = 0.85
	// TemplateBaseline is the template's weight in a hybrid average.
	TemplateBaseline = 0.8
)

type Config struct {
	AIAttemptPercent    float64 // 0-100
	ConfidenceThreshold float64 // 0-1
	MaxTokens           int
	Temperature         float64
}

func DefaultConfig() Config {
	return Config{
		AIAttemptPercent:    70,
		ConfidenceThreshold: 0.6,
		MaxTokens:           400,
		Temperature:         0.7,
	}
}

func (c Config) normalized() Config {
	c.AIAttemptPercent = min(100, max(0, c.AIAttemptPercent))
	c.ConfidenceThreshold = min(1, max(0, c.ConfidenceThreshold))
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultConfig().MaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultConfig().Temperature
	}
	return c
}

// RandSource supplies uniform samples in [0,1).
type RandSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

type Option func(*Orchestrator)

func WithRand(r RandSource) Option {
	return func(o *Orchestrator) { o.rand = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithContent(c *Content) Option {
	return func(o *Orchestrator) { o.content = c }
}

type Request struct {
	Mood       mood.Tag
	Tone       Tone
	Transcript string
}

type Result struct {
	Text         string   `json:"text"`
	Source       Source   `json:"source"`
	Confidence   float64  `json:"confidence"`
	AIConfidence float64  `json:"ai_confidence"`
	Segments     []string `json:"segments,omitempty"`
	Suggestions  []string `json:"suggestions"`
	VideoScript  string   `json:"video_script"`
	Provider     string   `json:"provider,omitempty"`
}

// Orchestrator is immutable after construction; Reconfigure returns a copy.
type Orchestrator struct {
	cfg      Config
	provider llm.Provider
	content  *Content
	rand     RandSource
	logger   zerolog.Logger
}

func New(cfg Config, provider llm.Provider, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:      cfg.normalized(),
		provider: provider,
		rand:     globalRand{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.content == nil {
		c, err := ParseContent(defaultContent)
		if err != nil {
			return nil, err
		}
		o.content = c
	}
	return o, nil
}

func (o *Orchestrator) Config() Config { return o.cfg }

// Reconfigure returns a new Orchestrator using cfg. The receiver is unchanged.
func (o *Orchestrator) Reconfigure(cfg Config) *Orchestrator {
	next := *o
	next.cfg = cfg.normalized()
	return &next
}

// Generate never fails: provider problems degrade to template output.
func (o *Orchestrator) Generate(ctx context.Context, req Request) Result {
	if !req.Mood.Valid() {
		req.Mood = mood.Neutral
	}
	if req.Tone == "" {
		req.Tone = ToneCalm
	}

	res := o.generate(ctx, req)
	res.Suggestions = o.Suggestions(req.Transcript, req.Mood)
	res.VideoScript = o.VideoScript(res.Text, req.Mood)

	metrics.ResponsesGenerated.WithLabelValues(string(res.Source)).Inc()
	o.logger.Info().
		Str("source", string(res.Source)).
		Float64("confidence", res.Confidence).
		Float64("ai_confidence", res.AIConfidence).
		Str("mood", string(req.Mood)).
		Msg("response generated")
	return res
}

func (o *Orchestrator) generate(ctx context.Context, req Request) Result {
	tmpl := o.template(req.Mood, req.Tone)
	templateOnly := Result{
		Text:       tmpl.text(),
		Source:     SourceTemplate,
		Confidence: TemplateConfidence,
	}

	if o.provider == nil || o.rand.Float64()*100 >= o.cfg.AIAttemptPercent {
		return templateOnly
	}

	text, err := o.provider.GenerateText(ctx, o.prompt(req), llm.Params{
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		o.logger.Warn().Err(err).Str("provider", o.provider.Name()).Msg("generation failed, using template")
		templateOnly.Provider = o.provider.Name()
		return templateOnly
	}
	text = strings.TrimSpace(text)

	conf := o.Confidence(text)
	if conf >= o.cfg.ConfidenceThreshold {
		return Result{
			Text:         text,
			Source:       SourceAI,
			Confidence:   conf,
			AIConfidence: conf,
			Provider:     o.provider.Name(),
		}
	}

	segs := o.blend(text, tmpl)
	return Result{
		Text:         strings.Join(segs[:], " "),
		Source:       SourceHybrid,
		Confidence:   (conf + TemplateBaseline) / 2,
		AIConfidence: conf,
		Segments:     segs[:],
		Provider:     o.provider.Name(),
	}
}

// Confidence scores text as distinct therapeutic terms over three, capped
// at one. Any clinical deny-list term forces zero.
func (o *Orchestrator) Confidence(text string) float64 {
	t := strings.ToLower(text)
	if containsAny(t, o.content.DenyTerms) {
		return 0
	}
	n := 0
	for _, term := range o.content.TherapeuticTerms {
		if strings.Contains(t, term) {
			n++
		}
	}
	return min(1, float64(n)/3)
}

func (o *Orchestrator) prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The person just finished a voice check-in and chose the mood %q.\n", req.Mood)
	fmt.Fprintf(&b, "Reply in a %s tone, in three to five sentences meant to be spoken aloud.\n", req.Tone)
	b.WriteString("Open by acknowledging what they shared, offer one supportive reflection, and close with a gentle insight.\n")
	if tr := strings.TrimSpace(req.Transcript); tr != "" {
		fmt.Fprintf(&b, "What they said:\n%q\n", tr)
	}
	return b.String()
}

type templateParts struct {
	opening string
	middle  string
	closing string
}

func (p templateParts) text() string {
	return p.opening + " " + p.middle + " " + p.closing
}

func (o *Orchestrator) template(m mood.Tag, t Tone) templateParts {
	tc := o.content.tone(t)
	mc := o.content.mood(m)
	data := map[string]interface{}{
		"mood": string(m),
		"tone": string(t),
	}
	return templateParts{
		opening: render(o.pick(tc.Openings), data),
		middle:  render(o.pick(mc.Middles), data),
		closing: render(o.pick(tc.Closings), data),
	}
}

func (o *Orchestrator) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	i := int(o.rand.Float64() * float64(len(options)))
	return options[min(i, len(options)-1)]
}

func render(tmpl string, data map[string]interface{}) string {
	out, err := mustache.Render(tmpl, data)
	if err != nil {
		return tmpl
	}
	return strings.TrimSpace(out)
}

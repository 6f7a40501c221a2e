package mood

import "strings"

// Tag is the mood a user selects for a check-in.
type Tag string

const (
	Happy       Tag = "happy"
	Grateful    Tag = "grateful"
	Calm        Tag = "calm"
	Neutral     Tag = "neutral"
	Tired       Tag = "tired"
	Stressed    Tag = "stressed"
	Anxious     Tag = "anxious"
	Sad         Tag = "sad"
	Angry       Tag = "angry"
	Overwhelmed Tag = "overwhelmed"
)

// All lists every known tag in display order.
var All = []Tag{Happy, Grateful, Calm, Neutral, Tired, Stressed, Anxious, Sad, Angry, Overwhelmed}

var baseScores = map[Tag]float64{
	Happy:       9,
	Grateful:    8,
	Calm:        8,
	Neutral:     5,
	Tired:       4,
	Stressed:    3,
	Anxious:     3,
	Sad:         2,
	Angry:       2,
	Overwhelmed: 2,
}

// Parse normalizes s and reports whether it names a known mood.
func Parse(s string) (Tag, bool) {
	t := Tag(strings.ToLower(strings.TrimSpace(s)))
	_, ok := baseScores[t]
	return t, ok
}

func (t Tag) Valid() bool {
	_, ok := baseScores[t]
	return ok
}

// BaseScore maps a mood onto the 0-10 wellbeing scale. Unknown moods score neutral.
func (t Tag) BaseScore() float64 {
	if s, ok := baseScores[t]; ok {
		return s
	}
	return baseScores[Neutral]
}

func (t Tag) String() string { return string(t) }

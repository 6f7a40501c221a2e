// Package analytics derives the per-user dashboard from raw entries and
// caches it with a fixed expiry.
package analytics

import (
	"math"
	"sort"
	"time"

	"voicejournal/internal/entry"
	"voicejournal/internal/mood"
)

const (
	TrendDays      = 7
	trendWindow    = 7
	trendDelta     = 0.5
	maxIntensity   = 10.0
	dateLayout     = "2006-01-02"
	countSaturates = 2.0
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

type DayTrend struct {
	Date      string  `json:"date"`
	Mood      string  `json:"mood,omitempty"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
}

type Streak struct {
	Current     int        `json:"current"`
	Longest     int        `json:"longest"`
	LastCheckIn *time.Time `json:"last_check_in"`
}

type Dashboard struct {
	MoodTrends       []DayTrend `json:"mood_trends"`
	Streak           Streak     `json:"streak"`
	DominantMood     string     `json:"dominant_mood,omitempty"`
	AverageMoodScore float64    `json:"average_mood_score"`
	Trend            Trend      `json:"trend"`
	TotalEntries     int        `json:"total_entries"`
	ComputedAt       time.Time  `json:"computed_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
}

// Compute builds a dashboard from entries in any order. Calendar days are
// taken in loc.
func Compute(entries []entry.Entry, now time.Time, loc *time.Location) Dashboard {
	if loc == nil {
		loc = time.UTC
	}
	sorted := make([]entry.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	return Dashboard{
		MoodTrends:       moodTrends(sorted, now, loc),
		Streak:           streak(sorted, now, loc),
		DominantMood:     dominantMood(sorted),
		AverageMoodScore: round2(averageScore(sorted)),
		Trend:            trendDirection(sorted),
		TotalEntries:     len(sorted),
		ComputedAt:       now,
	}
}

func day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// moodTrends returns one bucket per day for the last TrendDays days, oldest
// first, including empty days.
func moodTrends(newestFirst []entry.Entry, now time.Time, loc *time.Location) []DayTrend {
	today := day(now, loc)
	start := today.AddDate(0, 0, -(TrendDays - 1))

	buckets := make(map[string][]entry.Entry, TrendDays)
	for _, e := range newestFirst {
		d := day(e.CreatedAt, loc)
		if d.Before(start) || d.After(today) {
			continue
		}
		k := d.Format(dateLayout)
		buckets[k] = append(buckets[k], e)
	}

	out := make([]DayTrend, 0, TrendDays)
	for i := 0; i < TrendDays; i++ {
		k := start.AddDate(0, 0, i).Format(dateLayout)
		es := buckets[k]
		dt := DayTrend{Date: k, Count: len(es)}
		if len(es) > 0 {
			dominant := dominantMood(es)
			dt.Mood = dominant
			weight := math.Min(float64(len(es))/3, countSaturates)
			dt.Intensity = round2(math.Min(mood.Tag(dominant).BaseScore()*weight, maxIntensity))
		}
		out = append(out, dt)
	}
	return out
}

func streak(newestFirst []entry.Entry, now time.Time, loc *time.Location) Streak {
	if len(newestFirst) == 0 {
		return Streak{}
	}

	last := newestFirst[0].CreatedAt
	days := make(map[time.Time]bool)
	for _, e := range newestFirst {
		days[day(e.CreatedAt, loc)] = true
	}

	s := Streak{LastCheckIn: &last}

	today := day(now, loc)
	cursor := today
	if !days[today] {
		cursor = today.AddDate(0, 0, -1)
	}
	for days[cursor] {
		s.Current++
		cursor = cursor.AddDate(0, 0, -1)
	}

	sortedDays := make([]time.Time, 0, len(days))
	for d := range days {
		sortedDays = append(sortedDays, d)
	}
	sort.Slice(sortedDays, func(i, j int) bool { return sortedDays[i].Before(sortedDays[j]) })

	run := 0
	for i, d := range sortedDays {
		if i > 0 && sortedDays[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		s.Longest = max(s.Longest, run)
	}
	return s
}

// dominantMood is the most frequent mood. Ties go to the mood seen most
// recently.
func dominantMood(newestFirst []entry.Entry) string {
	counts := make(map[string]int)
	for _, e := range newestFirst {
		counts[e.MoodTag]++
	}
	best, bestN := "", 0
	for _, e := range newestFirst {
		if n := counts[e.MoodTag]; n > bestN {
			best, bestN = e.MoodTag, n
		}
	}
	return best
}

func averageScore(es []entry.Entry) float64 {
	if len(es) == 0 {
		return 0
	}
	var sum float64
	for _, e := range es {
		sum += mood.Tag(e.MoodTag).BaseScore()
	}
	return sum / float64(len(es))
}

// trendDirection compares the newest trendWindow entries with the
// trendWindow before them.
func trendDirection(newestFirst []entry.Entry) Trend {
	if len(newestFirst) <= trendWindow {
		return TrendStable
	}
	recent := newestFirst[:trendWindow]
	previous := newestFirst[trendWindow:min(len(newestFirst), 2*trendWindow)]

	delta := averageScore(recent) - averageScore(previous)
	switch {
	case delta > trendDelta:
		return TrendImproving
	case delta < -trendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

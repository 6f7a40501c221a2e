package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicejournal/internal/entry"
)

var now = time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)

func at(daysAgo int, mood string) entry.Entry {
	return entry.Entry{
		MoodTag:   mood,
		CreatedAt: now.AddDate(0, 0, -daysAgo).Add(-time.Hour),
	}
}

func TestStreak(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry.Entry
		current int
		longest int
	}{
		{"today yesterday and day before", []entry.Entry{at(0, "calm"), at(1, "sad"), at(2, "happy")}, 3, 3},
		{"today and three days ago", []entry.Entry{at(0, "calm"), at(3, "sad")}, 1, 1},
		{"run ending yesterday still counts", []entry.Entry{at(1, "calm"), at(2, "calm")}, 2, 2},
		{"run ending two days ago is broken", []entry.Entry{at(2, "calm"), at(3, "calm")}, 0, 2},
		{"several entries on one day count once", []entry.Entry{at(0, "calm"), at(0, "sad"), at(0, "happy")}, 1, 1},
		{"longest run is historical", []entry.Entry{
			at(0, "calm"),
			at(10, "calm"), at(11, "calm"), at(12, "calm"), at(13, "calm"),
		}, 1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compute(tt.entries, now, time.UTC)
			assert.Equal(t, tt.current, d.Streak.Current)
			assert.Equal(t, tt.longest, d.Streak.Longest)
			require.NotNil(t, d.Streak.LastCheckIn)
		})
	}
}

func TestCompute_Empty(t *testing.T) {
	d := Compute(nil, now, time.UTC)
	assert.Equal(t, Streak{Current: 0, Longest: 0, LastCheckIn: nil}, d.Streak)
	assert.Equal(t, TrendStable, d.Trend)
	assert.Empty(t, d.DominantMood)
	assert.Zero(t, d.AverageMoodScore)
	require.Len(t, d.MoodTrends, TrendDays)
	for _, dt := range d.MoodTrends {
		assert.Zero(t, dt.Count)
		assert.Zero(t, dt.Intensity)
	}
}

func TestCompute_LastCheckInIsNewest(t *testing.T) {
	d := Compute([]entry.Entry{at(3, "sad"), at(0, "calm"), at(1, "happy")}, now, time.UTC)
	require.NotNil(t, d.Streak.LastCheckIn)
	assert.Equal(t, at(0, "calm").CreatedAt, *d.Streak.LastCheckIn)
}

func TestMoodTrends(t *testing.T) {
	entries := []entry.Entry{
		at(0, "happy"), at(0, "happy"), at(0, "sad"),
		at(2, "anxious"),
		at(3, "calm"), at(3, "calm"), at(3, "calm"), at(3, "calm"), at(3, "calm"), at(3, "calm"), at(3, "calm"),
		at(9, "sad"),
	}
	d := Compute(entries, now, time.UTC)

	require.Len(t, d.MoodTrends, 7)
	assert.Equal(t, "2024-06-09", d.MoodTrends[0].Date)
	assert.Equal(t, "2024-06-15", d.MoodTrends[6].Date)

	today := d.MoodTrends[6]
	assert.Equal(t, "happy", today.Mood)
	assert.Equal(t, 3, today.Count)
	assert.InDelta(t, 9.0, today.Intensity, 1e-9)

	twoAgo := d.MoodTrends[4]
	assert.Equal(t, "anxious", twoAgo.Mood)
	assert.InDelta(t, 1.0, twoAgo.Intensity, 1e-9)

	// weight saturates at 2 and intensity caps at 10
	threeAgo := d.MoodTrends[3]
	assert.Equal(t, 7, threeAgo.Count)
	assert.InDelta(t, 10.0, threeAgo.Intensity, 1e-9)

	assert.Zero(t, d.MoodTrends[5].Count)
	assert.Equal(t, len(entries), d.TotalEntries)
}

func TestDominantMood(t *testing.T) {
	d := Compute([]entry.Entry{at(0, "sad"), at(1, "calm"), at(2, "calm"), at(3, "sad"), at(4, "calm")}, now, time.UTC)
	assert.Equal(t, "calm", d.DominantMood)

	// ties go to the most recent
	d = Compute([]entry.Entry{at(0, "sad"), at(1, "calm"), at(2, "calm"), at(3, "sad")}, now, time.UTC)
	assert.Equal(t, "sad", d.DominantMood)
}

func TestTrendDirection(t *testing.T) {
	repeat := func(from, n int, mood string) []entry.Entry {
		var out []entry.Entry
		for i := 0; i < n; i++ {
			out = append(out, at(from+i, mood))
		}
		return out
	}

	tests := []struct {
		name    string
		entries []entry.Entry
		want    Trend
	}{
		{"fewer than eight entries", repeat(0, 7, "happy"), TrendStable},
		{"improving", append(repeat(0, 7, "happy"), repeat(7, 7, "sad")...), TrendImproving},
		{"declining", append(repeat(0, 7, "sad"), repeat(7, 7, "happy")...), TrendDeclining},
		{"within half a point", append(repeat(0, 7, "anxious"), repeat(7, 7, "stressed")...), TrendStable},
		{"only entries older than fourteen are ignored", append(append(repeat(0, 7, "calm"), repeat(7, 7, "calm")...), repeat(14, 7, "sad")...), TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.entries, now, time.UTC).Trend)
		})
	}
}

func TestAverageMoodScore(t *testing.T) {
	d := Compute([]entry.Entry{at(0, "happy"), at(1, "sad"), at(2, "neutral")}, now, time.UTC)
	assert.InDelta(t, 5.33, d.AverageMoodScore, 1e-9)
}

func TestCompute_UsesLocationForCalendarDays(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	// 02:00 UTC on the 15th is the evening of the 14th in loc
	late := entry.Entry{MoodTag: "calm", CreatedAt: time.Date(2024, 6, 15, 2, 0, 0, 0, time.UTC)}

	d := Compute([]entry.Entry{late}, now, time.UTC)
	assert.Equal(t, 1, d.MoodTrends[6].Count)

	d = Compute([]entry.Entry{late}, now, loc)
	assert.Equal(t, "2024-06-15", d.MoodTrends[6].Date)
	assert.Zero(t, d.MoodTrends[6].Count)
	assert.Equal(t, 1, d.MoodTrends[5].Count)
	assert.Equal(t, 1, d.Streak.Current)
}

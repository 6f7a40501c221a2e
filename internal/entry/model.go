package entry

import (
	"time"

	"github.com/lib/pq"
)

// Entry is a finished check-in. It is immutable after creation except for
// VideoRef, which is set at most once.
type Entry struct {
	ID                 uint64         `gorm:"primaryKey" json:"id"`
	UserID             uint64         `gorm:"index;not null" json:"user_id"`
	MoodTag            string         `gorm:"type:text;not null" json:"mood_tag"`
	VoiceNoteRef       string         `gorm:"type:text;not null;default:''" json:"voice_note_ref"`
	AIResponseAudioRef string         `gorm:"type:text;not null;default:''" json:"ai_response_audio_ref"`
	TextSummary        string         `gorm:"type:text;not null;default:''" json:"text_summary"`
	Transcript         string         `gorm:"type:text;not null;default:''" json:"transcript"`
	VideoRef           *string        `gorm:"type:text" json:"video_ref"`
	ResponseSource     string         `gorm:"type:text;not null;default:'template'" json:"response_source"`
	Confidence         float64        `gorm:"not null;default:0" json:"confidence"`
	Tags               pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"tags"`
	CreatedAt          time.Time      `gorm:"index;not null;default:now()" json:"created_at"`
}

func (Entry) TableName() string { return "entries" }

// Filter narrows a per-user query. Zero values match everything; Limit 0
// means no limit.
type Filter struct {
	Since *time.Time
	Until *time.Time
	Mood  string
	Tag   string
	Text  string
	Limit int
}

package entry

import (
	"context"
	"errors"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVideoAlreadySet = errors.New("video ref already set")
)

type Store interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, userID, id uint64) (*Entry, error)
	Query(ctx context.Context, userID uint64, f Filter) ([]Entry, error)
	PatchVideoRef(ctx context.Context, id uint64, ref string) error
	Delete(ctx context.Context, userID, id uint64) error
}

type GormStore struct {
	DB *gorm.DB
}

func (s *GormStore) Create(ctx context.Context, e *Entry) error {
	if e.Tags == nil {
		e.Tags = pq.StringArray{}
	}
	return s.DB.WithContext(ctx).Create(e).Error
}

func (s *GormStore) Get(ctx context.Context, userID, id uint64) (*Entry, error) {
	var e Entry
	err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *GormStore) Query(ctx context.Context, userID uint64, f Filter) ([]Entry, error) {
	q := s.DB.WithContext(ctx).Model(&Entry{}).Where("user_id = ?", userID)
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("created_at < ?", *f.Until)
	}
	if m := strings.TrimSpace(f.Mood); m != "" {
		q = q.Where("mood_tag = ?", m)
	}
	if t := strings.TrimSpace(strings.ToLower(f.Tag)); t != "" {
		q = q.Where("? = any(tags)", t)
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		q = q.Where("(transcript ILIKE ? OR text_summary ILIKE ?)", "%"+text+"%", "%"+text+"%")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []Entry
	if err := q.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PatchVideoRef sets video_ref only while it is still null.
func (s *GormStore) PatchVideoRef(ctx context.Context, id uint64, ref string) error {
	res := s.DB.WithContext(ctx).
		Model(&Entry{}).
		Where("id = ? AND video_ref IS NULL", id).
		Update("video_ref", ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := s.DB.WithContext(ctx).Model(&Entry{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrVideoAlreadySet
}

func (s *GormStore) Delete(ctx context.Context, userID, id uint64) error {
	res := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&Entry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

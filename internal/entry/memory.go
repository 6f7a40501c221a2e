package entry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]Entry
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uint64]Entry), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.rows[e.ID] = *e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID, id uint64) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.UserID != userID {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) Query(_ context.Context, userID uint64, f Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag := strings.ToLower(strings.TrimSpace(f.Tag))
	text := strings.ToLower(strings.TrimSpace(f.Text))

	var out []Entry
	for _, e := range s.rows {
		switch {
		case e.UserID != userID:
		case f.Since != nil && e.CreatedAt.Before(*f.Since):
		case f.Until != nil && !e.CreatedAt.Before(*f.Until):
		case f.Mood != "" && e.MoodTag != f.Mood:
		case tag != "" && !hasTag(e.Tags, tag):
		case text != "" && !strings.Contains(strings.ToLower(e.Transcript+" "+e.TextSummary), text):
		default:
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s *MemoryStore) PatchVideoRef(_ context.Context, id uint64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if e.VideoRef != nil {
		return ErrVideoAlreadySet
	}
	e.VideoRef = &ref
	s.rows[id] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.UserID != userID {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

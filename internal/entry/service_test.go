package entry

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type recordingInvalidator struct {
	users []uint64
	err   error
	fails int // fail this many calls, then succeed; negative fails forever
}

func (r *recordingInvalidator) InvalidateUserCache(_ context.Context, userID uint64) error {
	r.users = append(r.users, userID)
	if r.fails < 0 {
		return r.err
	}
	if r.fails > 0 {
		r.fails--
		return r.err
	}
	return nil
}

func TestService_CreateInvalidatesSynchronously(t *testing.T) {
	inv := &recordingInvalidator{}
	svc := NewService(NewMemoryStore(), inv, zerolog.Nop())

	e := &Entry{UserID: 7, MoodTag: "calm", Transcript: "a quiet day #garden"}
	require.NoError(t, svc.Create(context.Background(), e))

	assert.NotZero(t, e.ID)
	assert.Equal(t, []uint64{7}, inv.users)
	assert.Equal(t, []string{"garden"}, []string(e.Tags))
}

func TestService_CreateRejectsPresetVideoRef(t *testing.T) {
	inv := &recordingInvalidator{}
	svc := NewService(NewMemoryStore(), inv, zerolog.Nop())

	ref := "x"
	assert.Error(t, svc.Create(context.Background(), &Entry{UserID: 1, MoodTag: "sad", VideoRef: &ref}))
	assert.Error(t, svc.Create(context.Background(), &Entry{UserID: 1}))
	assert.Empty(t, inv.users)
}

func TestService_InvalidationIsRetried(t *testing.T) {
	inv := &recordingInvalidator{err: errors.New("redis blip"), fails: 2}
	svc := NewService(NewMemoryStore(), inv, zerolog.Nop())
	svc.retryWait = time.Millisecond

	require.NoError(t, svc.Create(context.Background(), &Entry{UserID: 5, MoodTag: "calm"}))
	assert.Equal(t, []uint64{5, 5, 5}, inv.users)
}

func TestService_InvalidationFailureIsReported(t *testing.T) {
	inv := &recordingInvalidator{err: errors.New("redis down"), fails: -1}
	store := NewMemoryStore()
	svc := NewService(store, inv, zerolog.Nop())
	svc.retryWait = time.Millisecond

	e := &Entry{UserID: 2, MoodTag: "happy"}
	err := svc.Create(context.Background(), e)
	require.ErrorIs(t, err, ErrStaleDashboard)
	assert.Len(t, inv.users, invalidateAttempts)

	got, err := store.Get(context.Background(), 2, e.ID)
	require.NoError(t, err, "the entry itself is durable")
	assert.Equal(t, "happy", got.MoodTag)

	assert.ErrorIs(t, svc.Delete(context.Background(), 2, e.ID), ErrStaleDashboard)
	_, err = store.Get(context.Background(), 2, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	inv := &recordingInvalidator{}
	svc := NewService(NewMemoryStore(), inv, zerolog.Nop())

	e := &Entry{UserID: 3, MoodTag: "tired"}
	require.NoError(t, svc.Create(context.Background(), e))

	assert.ErrorIs(t, svc.Delete(context.Background(), 4, e.ID), ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), 3, e.ID))
	assert.Equal(t, []uint64{3, 3}, inv.users)

	_, err := svc.Get(context.Background(), 3, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_PatchVideoRefOnce(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, zerolog.Nop())
	e := &Entry{UserID: 1, MoodTag: "calm"}
	require.NoError(t, svc.Create(context.Background(), e))

	require.NoError(t, svc.PatchVideoRef(context.Background(), e.ID, "https://cdn/v.mp4"))
	assert.ErrorIs(t, svc.PatchVideoRef(context.Background(), e.ID, "https://cdn/other.mp4"), ErrVideoAlreadySet)
	assert.ErrorIs(t, svc.PatchVideoRef(context.Background(), 999, "https://cdn/v.mp4"), ErrNotFound)

	got, err := svc.Get(context.Background(), 1, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VideoRef)
	assert.Equal(t, "https://cdn/v.mp4", *got.VideoRef)
}

func TestMemoryStore_QueryFilters(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := []Entry{
		{UserID: 1, MoodTag: "sad", Transcript: "missing home #family", Tags: []string{"family"}, CreatedAt: base},
		{UserID: 1, MoodTag: "happy", Transcript: "great run", CreatedAt: base.Add(24 * time.Hour)},
		{UserID: 1, MoodTag: "sad", Transcript: "rain again", CreatedAt: base.Add(48 * time.Hour)},
		{UserID: 2, MoodTag: "sad", CreatedAt: base},
	}
	for i := range rows {
		require.NoError(t, store.Create(context.Background(), &rows[i]))
	}

	all, err := store.Query(context.Background(), 1, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rain again", all[0].Transcript, "newest first")

	since := base.Add(time.Hour)
	got, err := store.Query(context.Background(), 1, Filter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.Query(context.Background(), 1, Filter{Mood: "sad", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rain again", got[0].Transcript)

	got, err = store.Query(context.Background(), 1, Filter{Tag: "Family"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.Query(context.Background(), 1, Filter{Text: "RUN"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestExtractTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"nothing here", nil},
		{"#Work was long, #work again", []string{"work"}},
		{"hashtag gratitude and hash tag family", []string{"gratitude", "family"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractTags(tt.in), tt.in)
	}
}

func TestGormStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Entry{}))

	store := &GormStore{DB: db}
	ctx := context.Background()

	e := &Entry{UserID: 424242, MoodTag: "calm", Transcript: "gorm store test", Tags: []string{"test"}}
	require.NoError(t, store.Create(ctx, e))
	t.Cleanup(func() { _ = store.Delete(ctx, e.UserID, e.ID) })

	require.NoError(t, store.PatchVideoRef(ctx, e.ID, "https://cdn/a.mp4"))
	assert.ErrorIs(t, store.PatchVideoRef(ctx, e.ID, "https://cdn/b.mp4"), ErrVideoAlreadySet)

	got, err := store.Query(ctx, e.UserID, Filter{Tag: "test", Text: "STORE"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://cdn/a.mp4", *got[0].VideoRef)
}

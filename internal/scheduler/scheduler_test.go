package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.Add("broken", "every minute please", func(context.Context) (int64, error) { return 0, nil })
	assert.Error(t, err)
}

func TestScheduler_RunSwallowsErrors(t *testing.T) {
	s := New(zerolog.Nop())
	var calls atomic.Int32
	ok := func(ctx context.Context) (int64, error) {
		calls.Add(1)
		require.NoError(t, ctx.Err())
		return 3, nil
	}
	bad := func(context.Context) (int64, error) {
		calls.Add(1)
		return 0, errors.New("db down")
	}

	s.run("ok", ok)
	s.run("bad", bad)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_StopCancelsContext(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.Add("noop", "@every 1h", func(context.Context) (int64, error) { return 0, nil }))
	s.Start()
	s.Stop()
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
}

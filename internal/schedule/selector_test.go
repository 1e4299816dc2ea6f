package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"shareit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	active      []models.Booking
	past        *models.Booking
	err         error
	activeCalls int
	pastCalls   int
}

func (f *fakeSource) GetActiveBookingsByItem(_ context.Context, _ int64, _ time.Time) ([]models.Booking, error) {
	f.activeCalls++
	return f.active, f.err
}

func (f *fakeSource) GetLastPastBookingByItem(_ context.Context, _ int64, _ time.Time) (*models.Booking, error) {
	f.pastCalls++
	return f.past, nil
}

func TestSelectLastAndNext(t *testing.T) {
	ctx := context.Background()
	item := models.Item{ID: 1, OwnerID: 10}
	h := time.Hour
	past := span(100, -5*h, -4*h)

	t.Run("NonOwnerSeesNothing", func(t *testing.T) {
		src := &fakeSource{active: []models.Booking{span(1, h, 2*h)}, past: &past}
		last, next, err := SelectLastAndNext(ctx, src, item, 11, baseNow)
		require.NoError(t, err)
		assert.Nil(t, last)
		assert.Nil(t, next)
		assert.Zero(t, src.activeCalls)
	})

	t.Run("NoActiveBookingsSkipsPastLookup", func(t *testing.T) {
		src := &fakeSource{past: &past}
		last, next, err := SelectLastAndNext(ctx, src, item, 10, baseNow)
		require.NoError(t, err)
		assert.Nil(t, last)
		assert.Nil(t, next)
		assert.Zero(t, src.pastCalls)
	})

	t.Run("SingleFutureNoPast", func(t *testing.T) {
		src := &fakeSource{active: []models.Booking{span(1, h, 2*h)}}
		last, next, err := SelectLastAndNext(ctx, src, item, 10, baseNow)
		require.NoError(t, err)
		assert.Nil(t, last)
		require.NotNil(t, next)
		assert.Equal(t, int64(1), next.ID)
		assert.Equal(t, 1, src.pastCalls)
	})

	t.Run("SingleFutureWithPast", func(t *testing.T) {
		src := &fakeSource{active: []models.Booking{span(1, h, 2*h)}, past: &past}
		last, next, err := SelectLastAndNext(ctx, src, item, 10, baseNow)
		require.NoError(t, err)
		require.NotNil(t, last)
		require.NotNil(t, next)
		assert.Equal(t, int64(100), last.ID)
		assert.Equal(t, int64(1), next.ID)
	})

	t.Run("SingleRunning", func(t *testing.T) {
		src := &fakeSource{active: []models.Booking{span(1, -h, h)}, past: &past}
		last, next, err := SelectLastAndNext(ctx, src, item, 10, baseNow)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, int64(1), last.ID)
		assert.Nil(t, next)
		assert.Zero(t, src.pastCalls)
	})

	t.Run("RunningThenFuture", func(t *testing.T) {
		src := &fakeSource{active: []models.Booking{span(1, -h, h), span(2, 2*h, 3*h), span(3, 4*h, 5*h)}, past: &past}
		last, next, err := SelectLastAndNext(ctx, src, item, 10, baseNow)
		require.NoError(t, err)
		assert.Equal(t, int64(1), last.ID)
		assert.Equal(t, int64(2), next.ID)
		assert.Zero(t, src.pastCalls)
	})

	t.Run("TwoFuture", func(t *testing.T) {
		src := &fakeSource{active: []models.Booking{span(1, h, 2*h), span(2, 3*h, 4*h)}, past: &past}
		last, next, err := SelectLastAndNext(ctx, src, item, 10, baseNow)
		require.NoError(t, err)
		assert.Equal(t, int64(100), last.ID)
		assert.Equal(t, int64(1), next.ID)
	})

	t.Run("SourceError", func(t *testing.T) {
		src := &fakeSource{err: errors.New("db down")}
		_, _, err := SelectLastAndNext(ctx, src, item, 10, baseNow)
		assert.Error(t, err)
	})
}

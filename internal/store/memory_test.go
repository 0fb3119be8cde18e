package store_test

import (
	"context"
	"testing"
	"time"

	"casino-engine/internal/store"
	"casino-engine/internal/store/storetest"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, store.NewMemory())
}

func TestMemoryHonoursContext(t *testing.T) {
	s := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Balance(ctx, 1, storetest.Currency)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.PlaceBet(ctx, storetest.CreateTestBet(1, "1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithinTimeout(t *testing.T) {
	err := store.WithinTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 50, store.ClampLimit(0))
	assert.Equal(t, 50, store.ClampLimit(500))
	assert.Equal(t, 20, store.ClampLimit(20))
}

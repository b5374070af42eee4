package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pdv/backend/internal/cache"
	"pdv/backend/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreFailedUpdateLeavesCartUntouched(t *testing.T) {
	s := NewStore(nil, 0, discardLogger())
	ctx := context.Background()

	_, err := s.Update(ctx, "kasir1", func(c *domain.Cart) error {
		Add(c, soda(), d("2"), decimal.NullDecimal{})
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	got, err := s.Update(ctx, "kasir1", func(c *domain.Cart) error {
		Add(c, soda(), d("10"), decimal.NullDecimal{})
		Clear(c)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Len(t, got.Items, 1)
	require.True(t, got.Items[0].Quantity.Equal(d("2")))

	snap := s.Snapshot(ctx, "kasir1")
	require.True(t, snap.Items[0].Quantity.Equal(d("2")))
}

func TestStoreSerializesSameOperator(t *testing.T) {
	s := NewStore(nil, 0, discardLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "kasir1", func(c *domain.Cart) error {
				Add(c, soda(), d("1"), decimal.NullDecimal{})
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap := s.Snapshot(ctx, "kasir1")
	require.Len(t, snap.Items, 1)
	require.True(t, snap.Items[0].Quantity.Equal(d("50")), "quantity %s", snap.Items[0].Quantity)
}

func TestStoreKeepsOperatorsApart(t *testing.T) {
	s := NewStore(nil, 0, discardLogger())
	ctx := context.Background()

	_, err := s.Update(ctx, "kasir1", func(c *domain.Cart) error {
		Add(c, soda(), d("1"), decimal.NullDecimal{})
		return nil
	})
	require.NoError(t, err)

	require.Empty(t, s.Snapshot(ctx, "kasir2").Items)
	require.Empty(t, s.Snapshot(ctx, "").Items)
	require.Equal(t, AnonymousOperator, s.Snapshot(ctx, "").OperatorID)
	require.Len(t, s.Snapshot(ctx, "kasir1").Items, 1)
}

func TestStoreSweepEvictsIdleCarts(t *testing.T) {
	s := NewStore(nil, 10*time.Minute, discardLogger())
	ctx := context.Background()
	clock := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.Update(ctx, "kasir1", func(c *domain.Cart) error {
		Add(c, soda(), d("1"), decimal.NullDecimal{})
		return nil
	})
	require.NoError(t, err)

	clock = clock.Add(5 * time.Minute)
	_, err = s.Update(ctx, "kasir2", func(c *domain.Cart) error {
		Add(c, soda(), d("1"), decimal.NullDecimal{})
		return nil
	})
	require.NoError(t, err)

	clock = clock.Add(6 * time.Minute)
	require.Equal(t, 1, s.Sweep(ctx))
	require.Equal(t, 1, s.Len())
	require.Empty(t, s.Snapshot(ctx, "kasir1").Items)
	require.Len(t, s.Snapshot(ctx, "kasir2").Items, 1)
}

func TestStoreExpiresIdleCartLazily(t *testing.T) {
	s := NewStore(nil, time.Minute, discardLogger())
	ctx := context.Background()
	clock := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.Update(ctx, "kasir1", func(c *domain.Cart) error {
		Add(c, soda(), d("1"), decimal.NullDecimal{})
		return nil
	})
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	require.Empty(t, s.Snapshot(ctx, "kasir1").Items)
}

func TestStoreRestoresSnapshotAfterRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	snapshots := cache.NewRedisCartCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = snapshots.Close() })
	ctx := context.Background()

	first := NewStore(snapshots, time.Hour, discardLogger())
	_, err := first.Update(ctx, "kasir1", func(c *domain.Cart) error {
		Add(c, soda(), d("6"), decimal.NullDecimal{})
		return nil
	})
	require.NoError(t, err)

	second := NewStore(snapshots, time.Hour, discardLogger())
	restored := second.Snapshot(ctx, "kasir1")
	require.Len(t, restored.Items, 1)
	require.True(t, restored.FinalTotal.Equal(d("48.45")), "final %s", restored.FinalTotal)

	second.Reset(ctx, "kasir1")
	_, ok, err := snapshots.Get(ctx, "kasir1")
	require.NoError(t, err)
	require.False(t, ok, "empty cart must drop its snapshot")
}

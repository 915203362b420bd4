//go:build integration

package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mkrolick/co-streamer/internal/model"
)

// exerciseLedger runs the behaviour every backend must share
func exerciseLedger(t *testing.T, l Ledger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("record and check", func(t *testing.T) {
		has, err := l.HasDownloaded(ctx, "vid1")
		require.NoError(t, err)
		assert.False(t, has)

		created, err := l.RecordDownloaded(ctx, model.LedgerEntry{ItemID: "vid1", ChannelID: "@a", CompletedAt: at})
		require.NoError(t, err)
		assert.True(t, created)

		has, err = l.HasDownloaded(ctx, "vid1")
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("overwrite keeps identity", func(t *testing.T) {
		created, err := l.RecordDownloaded(ctx, model.LedgerEntry{ItemID: "vid1", ChannelID: "@other", CompletedAt: at.Add(time.Hour)})
		require.NoError(t, err)
		assert.False(t, created)

		entries, err := l.Entries(ctx, "@a")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, at.Add(time.Hour).Equal(entries[0].CompletedAt))
	})

	t.Run("concurrent record creates once", func(t *testing.T) {
		var created atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.RecordDownloaded(ctx, model.LedgerEntry{ItemID: "shared", ChannelID: "@b"})
				assert.NoError(t, err)
				if ok {
					created.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), created.Load())
	})

	t.Run("entries by channel", func(t *testing.T) {
		entries, err := l.Entries(ctx, "@b")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "shared", entries[0].ItemID)

		all, err := l.Entries(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestPostgresLedger_Integration(t *testing.T) {
	pool, databaseURL := setupTestDB(t)
	exerciseLedger(t, NewPostgresLedger(pool))

	version, dirty, err := SchemaVersion(databaseURL)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// re-running migrations is a no-op
	require.NoError(t, Migrate(databaseURL))
}

func TestRedisLedger_Integration(t *testing.T) {
	rdb := setupTestRedis(t)
	l := NewRedisLedger(rdb, "test:ledger")
	t.Cleanup(func() { _ = l.Close() })

	exerciseLedger(t, l)
}

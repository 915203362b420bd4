package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// DefaultRedisKey is the hash that holds the ledger when none is configured
const DefaultRedisKey = "co-streamer:ledger"

// RedisLedger keeps one hash field per item ID
type RedisLedger struct {
	rdb redis.UniversalClient
	key string
}

type redisEntry struct {
	ChannelID   string    `json:"channel_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func NewRedisLedger(rdb redis.UniversalClient, key string) *RedisLedger {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLedger{rdb: rdb, key: key}
}

func (l *RedisLedger) HasDownloaded(ctx context.Context, itemID string) (bool, error) {
	ok, err := l.rdb.HExists(ctx, l.key, itemID).Result()
	if err != nil {
		return false, writeFailure(err, "failed to check ledger entry")
	}
	return ok, nil
}

// RecordDownloaded uses HSETNX so that exactly one concurrent writer observes created
func (l *RedisLedger) RecordDownloaded(ctx context.Context, entry model.LedgerEntry) (bool, error) {
	if entry.ItemID == "" {
		return false, apperrors.New(apperrors.CodeLedgerWrite, "ledger entry has no item ID")
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now().UTC()
	}

	value, err := json.Marshal(redisEntry{ChannelID: entry.ChannelID, CompletedAt: entry.CompletedAt.UTC()})
	if err != nil {
		return false, writeFailure(err, "failed to encode ledger entry")
	}

	created, err := l.rdb.HSetNX(ctx, l.key, entry.ItemID, value).Result()
	if err != nil {
		return false, writeFailure(err, "failed to record ledger entry")
	}
	if created {
		return true, nil
	}

	// Existing item: keep its channel, move the timestamp
	raw, err := l.rdb.HGet(ctx, l.key, entry.ItemID).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, writeFailure(err, "failed to read ledger entry")
	}
	var existing redisEntry
	if err == nil && json.Unmarshal(raw, &existing) == nil && existing.ChannelID != "" {
		value, err = json.Marshal(redisEntry{ChannelID: existing.ChannelID, CompletedAt: entry.CompletedAt.UTC()})
		if err != nil {
			return false, writeFailure(err, "failed to encode ledger entry")
		}
	}

	if err := l.rdb.HSet(ctx, l.key, entry.ItemID, value).Err(); err != nil {
		return false, writeFailure(err, "failed to update ledger entry")
	}
	return false, nil
}

func (l *RedisLedger) Entries(ctx context.Context, channelID string) ([]model.LedgerEntry, error) {
	all, err := l.rdb.HGetAll(ctx, l.key).Result()
	if err != nil {
		return nil, writeFailure(err, "failed to list ledger entries")
	}

	entries := make([]model.LedgerEntry, 0, len(all))
	for itemID, raw := range all {
		var e redisEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, writeFailure(err, "failed to decode ledger entry "+itemID)
		}
		if channelID != "" && e.ChannelID != channelID {
			continue
		}
		entries = append(entries, model.LedgerEntry{ItemID: itemID, ChannelID: e.ChannelID, CompletedAt: e.CompletedAt})
	}
	sortEntries(entries)
	return entries, nil
}

func (l *RedisLedger) Close() error {
	return l.rdb.Close()
}

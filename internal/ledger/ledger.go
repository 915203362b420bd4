package ledger

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Mkrolick/co-streamer/internal/config"
	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/logging"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// Ledger is the durable record of completed downloads.
// Implementations are safe for concurrent use and fail with LEDGER_WRITE_FAILURE.
type Ledger interface {
	// HasDownloaded reports whether itemID has a ledger entry
	HasDownloaded(ctx context.Context, itemID string) (bool, error)

	// RecordDownloaded inserts entry, or overwrites the timestamp of an existing
	// entry for the same item. created is true when no entry existed before.
	RecordDownloaded(ctx context.Context, entry model.LedgerEntry) (created bool, err error)

	// Entries lists recorded items, restricted to channelID unless it is empty
	Entries(ctx context.Context, channelID string) ([]model.LedgerEntry, error)

	Close() error
}

// Open creates the ledger selected by cfg.Ledger.Backend
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Ledger, error) {
	log = logging.Component(log, "ledger").With().Str("backend", cfg.Ledger.Backend).Logger()

	switch cfg.Ledger.Backend {
	case config.LedgerBackendFile:
		return NewFileLedger(cfg.Ledger.Path, log)

	case config.LedgerBackendPostgres:
		if err := Migrate(cfg.Ledger.DatabaseURL); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to prepare ledger schema")
		}
		pool, err := config.NewDatabasePool(ctx, cfg, log)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to connect to ledger database")
		}
		return NewPostgresLedger(pool), nil

	case config.LedgerBackendRedis:
		rdb, err := config.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to connect to ledger redis")
		}
		return NewRedisLedger(rdb, cfg.Ledger.RedisKey), nil

	default:
		return nil, apperrors.New(apperrors.CodeConfiguration, "unknown ledger backend: "+cfg.Ledger.Backend)
	}
}

func writeFailure(err error, message string) error {
	return apperrors.Wrap(err, apperrors.CodeLedgerWrite, message)
}

// sortEntries orders entries by completion time, then item ID
func sortEntries(entries []model.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CompletedAt.Equal(entries[j].CompletedAt) {
			return entries[i].CompletedAt.Before(entries[j].CompletedAt)
		}
		return entries[i].ItemID < entries[j].ItemID
	})
}

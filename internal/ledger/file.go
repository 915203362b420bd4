package ledger

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// FileLedger keeps the ledger in an append-only text file, one
// "<item_id> <channel> <completed_at>" line per record. Later lines for the
// same item override earlier ones on reload.
type FileLedger struct {
	fs   afero.Fs
	path string
	log  zerolog.Logger

	mu      sync.Mutex
	file    afero.File
	entries map[string]model.LedgerEntry
}

// NewFileLedger opens (or creates) the ledger file at path on the OS filesystem
func NewFileLedger(path string, log zerolog.Logger) (*FileLedger, error) {
	return NewFileLedgerWithFS(afero.NewOsFs(), path, log)
}

// NewFileLedgerWithFS opens the ledger file on a custom filesystem (for testing)
func NewFileLedgerWithFS(fs afero.Fs, path string, log zerolog.Logger) (*FileLedger, error) {
	l := &FileLedger{
		fs:      fs,
		path:    path,
		log:     log,
		entries: make(map[string]model.LedgerEntry),
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to create ledger directory")
		}
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to open ledger file")
	}
	l.file = f

	l.log.Debug().Str("path", path).Int("entries", len(l.entries)).Msg("ledger loaded")
	return l, nil
}

func (l *FileLedger) load() error {
	f, err := l.fs.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to read ledger file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			l.log.Warn().Err(err).Int("line", lineNo).Msg("skipping malformed ledger line")
			continue
		}
		l.entries[entry.ItemID] = entry
	}
	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to read ledger file")
	}
	return nil
}

func formatLine(entry model.LedgerEntry) string {
	return fmt.Sprintf("%s %s %s\n",
		url.PathEscape(entry.ItemID),
		url.PathEscape(entry.ChannelID),
		entry.CompletedAt.UTC().Format(time.RFC3339Nano))
}

func parseLine(line string) (model.LedgerEntry, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return model.LedgerEntry{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	itemID, err := url.PathUnescape(fields[0])
	if err != nil {
		return model.LedgerEntry{}, err
	}
	channelID, err := url.PathUnescape(fields[1])
	if err != nil {
		return model.LedgerEntry{}, err
	}
	completedAt, err := time.Parse(time.RFC3339Nano, fields[2])
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return model.LedgerEntry{ItemID: itemID, ChannelID: channelID, CompletedAt: completedAt}, nil
}

func (l *FileLedger) HasDownloaded(ctx context.Context, itemID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return false, writeFailure(os.ErrClosed, "ledger is closed")
	}
	_, ok := l.entries[itemID]
	return ok, nil
}

func (l *FileLedger) RecordDownloaded(ctx context.Context, entry model.LedgerEntry) (bool, error) {
	if entry.ItemID == "" {
		return false, apperrors.New(apperrors.CodeLedgerWrite, "ledger entry has no item ID")
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return false, writeFailure(os.ErrClosed, "ledger is closed")
	}

	existing, exists := l.entries[entry.ItemID]
	if exists {
		// identity is kept, only the completion time moves
		entry.ChannelID = existing.ChannelID
	}

	if _, err := l.file.WriteString(formatLine(entry)); err != nil {
		return false, writeFailure(err, "failed to append ledger entry")
	}
	if err := l.file.Sync(); err != nil {
		return false, writeFailure(err, "failed to sync ledger file")
	}

	l.entries[entry.ItemID] = entry
	return !exists, nil
}

func (l *FileLedger) Entries(ctx context.Context, channelID string) ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]model.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if channelID == "" || e.ChannelID == channelID {
			entries = append(entries, e)
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

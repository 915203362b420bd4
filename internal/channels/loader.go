package channels

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// ColumnName is the header of the CSV column holding channel URLs or handles
const ColumnName = "channel_url"

// Loader reads the channel list once at startup
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a Loader backed by the OS filesystem
func NewLoader() *Loader {
	return NewLoaderWithFS(afero.NewOsFs())
}

// NewLoaderWithFS creates a Loader on a custom filesystem (for testing)
func NewLoaderWithFS(fs afero.Fs) *Loader {
	return &Loader{fs: fs}
}

// Load returns the channels listed in path in file order.
// Blank cells and repeated channels are dropped.
func (l *Loader) Load(path string) ([]model.ChannelRef, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "channel list not found: "+path)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to open channel list")
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a channel list from r
func Parse(r io.Reader) ([]model.ChannelRef, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.New(apperrors.CodeConfiguration, "channel list is empty")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to read channel list header")
	}

	column := -1
	for i, name := range header {
		// tolerate a UTF-8 BOM written by spreadsheet exports
		name = strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")
		if name == ColumnName {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, apperrors.New(apperrors.CodeConfiguration, "channel list has no "+ColumnName+" column")
	}

	var refs []model.ChannelRef
	seen := make(map[model.ChannelRef]struct{})
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to parse channel list")
		}
		if column >= len(record) {
			continue
		}

		ref := model.ChannelRef(strings.TrimSpace(record[column]))
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	return refs, nil
}

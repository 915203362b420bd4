package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Mkrolick/co-streamer/internal/ledger"
	"github.com/Mkrolick/co-streamer/internal/model"
)

type probeFunc func(channel model.ChannelRef, call int) ([]model.ItemRef, error)

type fakeProber struct {
	mu    sync.Mutex
	probe probeFunc
	calls map[model.ChannelRef]int
}

func newFakeProber(probe probeFunc) *fakeProber {
	return &fakeProber{probe: probe, calls: make(map[model.ChannelRef]int)}
}

func (p *fakeProber) Probe(ctx context.Context, channel model.ChannelRef) ([]model.ItemRef, error) {
	p.mu.Lock()
	p.calls[channel]++
	n := p.calls[channel]
	p.mu.Unlock()
	return p.probe(channel, n)
}

func (p *fakeProber) Calls(channel model.ChannelRef) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[channel]
}

type fetchFunc func(ctx context.Context, item model.ItemRef, dest string) model.FetchOutcome

type fakeFetcher struct {
	mu    sync.Mutex
	fetch fetchFunc
	calls map[string]int
}

func newFakeFetcher(fetch fetchFunc) *fakeFetcher {
	return &fakeFetcher{fetch: fetch, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, item model.ItemRef, dest string) model.FetchOutcome {
	f.mu.Lock()
	f.calls[item.ID]++
	f.mu.Unlock()
	return f.fetch(ctx, item, dest)
}

func (f *fakeFetcher) Calls(itemID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[itemID]
}

func (f *fakeFetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// writingFetch simulates a download by writing <dest>/<id>.mp4
func writingFetch(fs afero.Fs) fetchFunc {
	return func(ctx context.Context, item model.ItemRef, dest string) model.FetchOutcome {
		path := filepath.Join(dest, item.ID+".mp4")
		if err := fs.MkdirAll(dest, 0755); err != nil {
			return model.RetryableFailure(err)
		}
		if err := afero.WriteFile(fs, path, []byte(item.ID), 0644); err != nil {
			return model.RetryableFailure(err)
		}
		return model.Success(path)
	}
}

func items(channel model.ChannelRef, liveness model.Liveness, ids ...string) []model.ItemRef {
	refs := make([]model.ItemRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, model.ItemRef{
			ID:       id,
			Channel:  channel,
			URL:      "https://www.youtube.com/watch?v=" + id,
			Liveness: liveness,
		})
	}
	return refs
}

func testOptions() Options {
	return Options{
		OutputDir:          "/archive",
		Concurrency:        4,
		MaxItemsPerChannel: 5,
		ProbeTimeout:       time.Second,
		FetchTimeout:       5 * time.Second,
		Policy: Policy{
			PollInterval:           20 * time.Millisecond,
			BackoffInitial:         5 * time.Millisecond,
			BackoffMax:             20 * time.Millisecond,
			BackoffMultiplier:      2,
			MaxConsecutiveFailures: 3,
		},
	}
}

func newTestLedger(t *testing.T) *ledger.FileLedger {
	t.Helper()
	l, err := ledger.NewFileLedgerWithFS(afero.NewMemMapFs(), "/state/downloaded.txt", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

type runHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	report Report
	err    error
}

func startRun(t *testing.T, o *Orchestrator, channels ...model.ChannelRef) *runHandle {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := &runHandle{cancel: cancel, done: make(chan struct{})}
	go func() {
		h.report, h.err = o.Run(ctx, channels)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

// stop cancels the run and waits for every worker to terminate
func (h *runHandle) stop(t *testing.T) Report {
	t.Helper()
	h.cancel()
	h.wait(t)
	return h.report
}

func (h *runHandle) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	require.NoError(t, h.err)
}

func statusOf(statuses []model.ChannelStatus, channel model.ChannelRef) model.ChannelStatus {
	for _, s := range statuses {
		if s.Channel == channel {
			return s
		}
	}
	return model.ChannelStatus{}
}

func hasDownloaded(l ledger.Ledger, itemID string) bool {
	ok, err := l.HasDownloaded(context.Background(), itemID)
	return err == nil && ok
}

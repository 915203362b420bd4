package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Mkrolick/co-streamer/internal/config"
	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/ledger"
	"github.com/Mkrolick/co-streamer/internal/logging"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// Prober lists the candidate items of a channel
type Prober interface {
	Probe(ctx context.Context, channel model.ChannelRef) ([]model.ItemRef, error)
}

// Fetcher downloads one item into a channel directory
type Fetcher interface {
	Fetch(ctx context.Context, item model.ItemRef, destinationDir string) model.FetchOutcome
}

// Options are the process-level controls read once at startup
type Options struct {
	OutputDir          string
	Concurrency        int
	MaxItemsPerChannel int
	ProbeTimeout       time.Duration
	FetchTimeout       time.Duration
	Policy             Policy
}

// OptionsFromConfig builds Options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OutputDir:          cfg.OutputDir,
		Concurrency:        cfg.Ingest.Concurrency,
		MaxItemsPerChannel: cfg.Ingest.MaxItemsPerChannel,
		ProbeTimeout:       cfg.Ingest.ProbeTimeout,
		FetchTimeout:       cfg.Ingest.FetchTimeout,
		Policy:             PolicyFromConfig(cfg.Ingest),
	}
}

// Orchestrator runs one worker per channel under a shared concurrency budget
type Orchestrator struct {
	prober     Prober
	fetcher    Fetcher
	ledger     ledger.Ledger
	classifier *Classifier
	opts       Options
	slots      *semaphore.Weighted
	claims     *claimSet
	metrics    *Metrics
	runID      string
	log        zerolog.Logger

	mu      sync.RWMutex
	workers []*worker
}

// New creates an Orchestrator. Metrics are registered on a private registry
// available through Metrics().
func New(prober Prober, fetcher Fetcher, l ledger.Ledger, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 12 * time.Hour
	}

	runID := uuid.NewString()
	return &Orchestrator{
		prober:     prober,
		fetcher:    fetcher,
		ledger:     l,
		classifier: NewClassifier(opts.Policy),
		opts:       opts,
		slots:      semaphore.NewWeighted(int64(opts.Concurrency)),
		claims:     newClaimSet(),
		metrics:    NewMetrics(),
		runID:      runID,
		log:        logging.Component(log, "orchestrator").With().Str("run_id", runID).Logger(),
	}
}

// RunID identifies this orchestrator in logs and reports
func (o *Orchestrator) RunID() string {
	return o.runID
}

func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// Run starts a worker per channel and blocks until every worker has
// terminated, either by aborting or because ctx was cancelled.
// In-flight fetches finish before their worker stops.
func (o *Orchestrator) Run(ctx context.Context, channels []model.ChannelRef) (Report, error) {
	if len(channels) == 0 {
		return Report{}, apperrors.New(apperrors.CodeConfiguration, "no channels to monitor")
	}

	report := Report{RunID: o.runID, StartedAt: time.Now().UTC()}

	seen := make(map[model.ChannelRef]struct{}, len(channels))
	workers := make([]*worker, 0, len(channels))
	for _, ch := range channels {
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		workers = append(workers, newWorker(o, ch))
	}

	o.mu.Lock()
	o.workers = workers
	o.mu.Unlock()

	o.log.Info().
		Int("channels", len(workers)).
		Int("concurrency", o.opts.Concurrency).
		Dur("poll_interval", o.opts.Policy.PollInterval).
		Msg("orchestrator started")

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			w.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	report.Channels = o.Statuses()
	for _, s := range report.Channels {
		report.Downloaded += s.Downloaded
	}

	o.log.Info().
		Int("downloaded", report.Downloaded).
		Int("aborted", len(report.Aborted())).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("orchestrator stopped")

	return report, nil
}

// Statuses returns a snapshot of every worker's state in channel-list order
func (o *Orchestrator) Statuses() []model.ChannelStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	statuses := make([]model.ChannelStatus, 0, len(o.workers))
	for _, w := range o.workers {
		statuses = append(statuses, w.snapshot())
	}
	return statuses
}

package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// worker is the control loop of one channel:
// queued -> probing -> fetching -> waiting -> queued ... -> terminated
type worker struct {
	o       *Orchestrator
	channel model.ChannelRef
	log     zerolog.Logger

	mu     sync.RWMutex
	status model.ChannelStatus

	// owned by the run goroutine
	streak Streak
	// items fetched whose ledger write failed, by item ID
	unrecorded map[string]string
}

func newWorker(o *Orchestrator, channel model.ChannelRef) *worker {
	return &worker{
		o:       o,
		channel: channel,
		log:     o.log.With().Str("channel", channel.String()).Logger(),
		status:  model.ChannelStatus{Channel: channel, UpdatedAt: time.Now().UTC()},

		unrecorded: make(map[string]string),
	}
}

func (w *worker) snapshot() model.ChannelStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.terminate(model.ReasonShutdown, nil)
			return
		}

		w.setPhase(model.PhaseQueued, nil)
		if err := w.o.slots.Acquire(ctx, 1); err != nil {
			w.terminate(model.ReasonShutdown, nil)
			return
		}
		w.o.metrics.SlotsInUse.Inc()
		w.setPhase(model.PhaseProbing, nil)

		delay, abortErr := w.round(ctx)

		w.o.slots.Release(1)
		w.o.metrics.SlotsInUse.Dec()

		if abortErr != nil {
			w.terminate(model.ReasonAborted, abortErr)
			return
		}
		if ctx.Err() != nil {
			w.terminate(model.ReasonShutdown, nil)
			return
		}

		next := time.Now().UTC().Add(delay)
		w.setPhase(model.PhaseWaiting, func(s *model.ChannelStatus) {
			s.Backoff = delay
			s.NextProbeAt = next
		})
		if !sleep(ctx, delay) {
			w.terminate(model.ReasonShutdown, nil)
			return
		}
	}
}

// round probes once and fetches what is new. It returns how long to wait
// before the next probe, or the error that aborts the channel.
func (w *worker) round(ctx context.Context) (time.Duration, error) {
	poll := w.o.opts.Policy.PollInterval

	probeCtx, cancel := context.WithTimeout(ctx, w.o.opts.ProbeTimeout)
	items, err := w.o.prober.Probe(probeCtx, w.channel)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil
		}
		w.o.metrics.ProbesTotal.WithLabelValues("error").Inc()

		v := w.failure(err, "")
		switch {
		case v.Action == ActionAbortChannel:
			return 0, err
		case v.Action == ActionRetryAfter && v.Counted:
			return v.Delay, nil
		default:
			w.resetFailures()
			return poll, nil
		}
	}
	w.o.metrics.ProbesTotal.WithLabelValues("ok").Inc()

	if limit := w.o.opts.MaxItemsPerChannel; limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 0 {
		w.log.Debug().Msg("no livestream available")
		w.resetFailures()
		return poll, nil
	}

	w.setPhase(model.PhaseFetching, nil)
	for _, item := range items {
		if ctx.Err() != nil {
			return 0, nil
		}

		if item.Liveness == model.LivenessScheduled {
			w.failure(apperrors.New(apperrors.CodeNotYetLive, "stream "+item.ID+" has not started"), item.ID)
			continue
		}

		err := w.process(ctx, item)
		if err == nil {
			continue
		}
		if ctx.Err() != nil && !apperrors.HasCode(err, apperrors.CodeLedgerWrite) {
			return 0, nil
		}

		v := w.failure(err, item.ID)
		switch {
		case v.Action == ActionAbortChannel:
			return 0, err
		case v.Action == ActionRetryAfter && v.Counted:
			// stop hammering the remote for the rest of this round
			return v.Delay, nil
		}
	}

	w.resetFailures()
	return poll, nil
}

// process fetches one item unless it is recorded or being fetched elsewhere.
// The fetch and its ledger write run to completion even if ctx is cancelled.
func (w *worker) process(ctx context.Context, item model.ItemRef) error {
	// claim before the ledger check: holders record before releasing
	if !w.o.claims.claim(item.ID, w.channel) {
		w.log.Debug().Str("item_id", item.ID).Msg("item is being fetched by another channel")
		return nil
	}
	defer w.o.claims.release(item.ID)

	done, err := w.o.ledger.HasDownloaded(ctx, item.ID)
	if err != nil {
		return asLedgerFailure(err, "ledger lookup failed for "+item.ID)
	}
	if done {
		delete(w.unrecorded, item.ID)
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.o.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	if path, ok := w.unrecorded[item.ID]; ok {
		// already on disk; only the ledger write is missing
		return w.record(fetchCtx, item, path, start)
	}

	dest := filepath.Join(w.o.opts.OutputDir, w.channel.DirName())
	outcome := w.o.fetcher.Fetch(fetchCtx, item, dest)
	w.o.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	w.o.metrics.FetchesTotal.WithLabelValues(string(outcome.Status)).Inc()

	switch outcome.Status {
	case model.FetchSuccess:
		return w.record(fetchCtx, item, outcome.Path, start)

	case model.FetchSkippedAlreadyPresent:
		w.log.Debug().Str("item_id", item.ID).Str("path", outcome.Path).Msg("output already present")
		return nil

	case model.FetchPermanentFailure:
		return withDefaultCode(outcome.Err, apperrors.CodeItemUnavailable, "fetch failed permanently")

	case model.FetchRetryableFailure:
		return withDefaultCode(outcome.Err, apperrors.CodeTransientNetwork, "fetch failed")

	default:
		return apperrors.New(apperrors.CodeExternal, "unexpected fetch status "+string(outcome.Status))
	}
}

// record completes a successful fetch. A failed write keeps the item in
// unrecorded so the next attempt retries the write without fetching again.
func (w *worker) record(ctx context.Context, item model.ItemRef, path string, start time.Time) error {
	entry := model.LedgerEntry{ItemID: item.ID, ChannelID: w.channel.String(), CompletedAt: time.Now().UTC()}
	created, err := w.o.ledger.RecordDownloaded(ctx, entry)
	if err != nil {
		w.unrecorded[item.ID] = path
		return asLedgerFailure(err, "failed to record "+item.ID)
	}
	delete(w.unrecorded, item.ID)

	if created {
		w.o.metrics.LedgerRecordings.Inc()
	}
	w.streak = Streak{}
	w.update(func(s *model.ChannelStatus) {
		s.Downloaded++
		s.ConsecutiveFailures = 0
		s.LastError = ""
	})
	w.log.Info().Str("item_id", item.ID).Str("path", path).Dur("elapsed", time.Since(start)).Msg("downloaded")
	return nil
}

// failure classifies err and records it on the worker
func (w *worker) failure(err error, itemID string) Verdict {
	v := w.o.classifier.Classify(err, w.streak)
	if v.Counted {
		w.streak.Failures++
	}
	if v.Escalates {
		w.streak.Transient++
	}
	w.o.metrics.FailuresTotal.WithLabelValues(v.Kind, string(v.Action)).Inc()

	informational := v.Kind == apperrors.CodeNotYetLive || v.Kind == apperrors.CodeQuiescent
	w.update(func(s *model.ChannelStatus) {
		s.ConsecutiveFailures = w.streak.Failures
		if !informational {
			s.LastError = err.Error()
		}
	})

	evt := w.log.Warn()
	if informational {
		evt = w.log.Info()
	}
	evt.Err(err).
		Str("item_id", itemID).
		Str("kind", v.Kind).
		Str("action", string(v.Action)).
		Dur("delay", v.Delay).
		Int("consecutive_failures", w.streak.Failures).
		Int("transient_failures", w.streak.Transient).
		Msg("failure classified")
	return v
}

func (w *worker) resetFailures() {
	if w.streak == (Streak{}) {
		return
	}
	w.streak = Streak{}
	w.update(func(s *model.ChannelStatus) { s.ConsecutiveFailures = 0 })
}

func (w *worker) update(mutate func(*model.ChannelStatus)) {
	w.mu.Lock()
	mutate(&w.status)
	w.status.UpdatedAt = time.Now().UTC()
	w.mu.Unlock()
}

func (w *worker) setPhase(to model.Phase, mutate func(*model.ChannelStatus)) {
	w.mu.Lock()
	from := w.status.Phase
	if err := model.TransitionPhase(&w.status, to); err != nil {
		w.mu.Unlock()
		w.log.Error().Err(err).Msg("phase transition rejected")
		return
	}
	if mutate != nil {
		mutate(&w.status)
	}
	w.mu.Unlock()

	w.o.metrics.phaseChanged(from, to)
}

func (w *worker) terminate(reason model.TerminalReason, cause error) {
	w.setPhase(model.PhaseTerminated, func(s *model.ChannelStatus) {
		s.Reason = reason
		if cause != nil {
			s.Cause = cause.Error()
		}
	})

	if reason == model.ReasonAborted {
		w.log.Error().Err(cause).Msg("channel aborted")
		return
	}
	w.log.Info().Msg("channel stopped")
}

func asLedgerFailure(err error, message string) error {
	if apperrors.HasCode(err, apperrors.CodeLedgerWrite) {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeLedgerWrite, message)
}

// withDefaultCode tags errors that arrive without a failure code
func withDefaultCode(err error, code, message string) error {
	if err == nil {
		return apperrors.New(code, message)
	}
	if apperrors.CodeOf(err) == "" {
		return apperrors.Wrap(err, code, message)
	}
	return err
}

// sleep waits for d; false if ctx was cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

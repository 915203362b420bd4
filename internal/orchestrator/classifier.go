package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Mkrolick/co-streamer/internal/config"
	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
)

// Action is the policy decision for a failure
type Action string

const (
	ActionRetryAfter   Action = "retry_after"
	ActionSkipItem     Action = "skip_item"
	ActionAbortChannel Action = "abort_channel"
)

// KindUnknown labels failures that carry no taxonomy code
const KindUnknown = "UNKNOWN"

// Verdict is the classifier's answer for one failure
type Verdict struct {
	Action Action
	Delay  time.Duration // set for ActionRetryAfter
	Kind   string        // failure code, or KindUnknown
	// Counted failures grow the channel's backoff
	Counted bool
	// Escalates marks failures that count toward the abort limit
	Escalates bool
}

// Streak is a channel's run of consecutive failures before the current one
type Streak struct {
	Failures  int // every counted failure
	Transient int // escalating failures only
}

// Policy holds the retry settings the classifier applies
type Policy struct {
	PollInterval           time.Duration
	BackoffInitial         time.Duration
	BackoffMax             time.Duration
	BackoffMultiplier      float64
	MaxConsecutiveFailures int
}

// PolicyFromConfig extracts the retry policy from the ingest settings
func PolicyFromConfig(cfg config.IngestConfig) Policy {
	return Policy{
		PollInterval:           cfg.PollInterval,
		BackoffInitial:         cfg.BackoffInitial,
		BackoffMax:             cfg.BackoffMax,
		BackoffMultiplier:      cfg.BackoffMultiplier,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}
}

// Classifier maps failures to retry actions. It holds no mutable state.
type Classifier struct {
	policy Policy
}

func NewClassifier(policy Policy) *Classifier {
	if policy.BackoffMultiplier < 1 {
		policy.BackoffMultiplier = 1
	}
	if policy.BackoffMax < policy.BackoffInitial {
		policy.BackoffMax = policy.BackoffInitial
	}
	if policy.MaxConsecutiveFailures < 1 {
		policy.MaxConsecutiveFailures = 1
	}
	return &Classifier{policy: policy}
}

// Classify decides what to do about err given the channel's current streak.
// Unknown failures grow the backoff but never move the channel toward abort.
func (c *Classifier) Classify(err error, streak Streak) Verdict {
	kind := kindOf(err)

	switch kind {
	case apperrors.CodeNotYetLive, apperrors.CodeQuiescent:
		return Verdict{Action: ActionRetryAfter, Delay: c.policy.PollInterval, Kind: kind}

	case apperrors.CodeTransientNetwork, apperrors.CodeRateLimited, apperrors.CodeLedgerWrite:
		if streak.Transient+1 >= c.policy.MaxConsecutiveFailures {
			return Verdict{Action: ActionAbortChannel, Kind: kind, Counted: true, Escalates: true}
		}
		return Verdict{Action: ActionRetryAfter, Delay: c.Backoff(streak.Failures + 1), Kind: kind, Counted: true, Escalates: true}

	case apperrors.CodeItemUnavailable:
		return Verdict{Action: ActionSkipItem, Kind: kind}

	case apperrors.CodeChannelUnavailable, apperrors.CodeConfiguration:
		return Verdict{Action: ActionAbortChannel, Kind: kind}

	default:
		return Verdict{Action: ActionRetryAfter, Delay: c.Backoff(streak.Failures + 1), Kind: KindUnknown, Counted: true}
	}
}

// kindOf extracts the taxonomy code; bare deadline errors are transient
func kindOf(err error) string {
	if err == nil {
		return apperrors.CodeQuiescent
	}
	if code := apperrors.CodeOf(err); code != "" {
		switch code {
		case apperrors.CodeNotYetLive, apperrors.CodeQuiescent, apperrors.CodeTransientNetwork,
			apperrors.CodeRateLimited, apperrors.CodeItemUnavailable, apperrors.CodeChannelUnavailable,
			apperrors.CodeLedgerWrite, apperrors.CodeConfiguration:
			return code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.CodeTransientNetwork
	}
	return KindUnknown
}

// Backoff returns the delay before the nth retry (n >= 1): exponential and
// capped, without jitter so the same inputs always give the same delay.
func (c *Classifier) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.BackoffInitial
	b.MaxInterval = c.policy.BackoffMax
	b.Multiplier = c.policy.BackoffMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.InitialInterval
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
		if d >= b.MaxInterval {
			return b.MaxInterval
		}
	}
	return d
}

package model

import (
	"fmt"
	"time"
)

// Phase is the Channel Worker state
type Phase string

const (
	PhaseQueued     Phase = "queued" // waiting for a concurrency slot before probing
	PhaseProbing    Phase = "probing"
	PhaseFetching   Phase = "fetching"
	PhaseWaiting    Phase = "waiting"
	PhaseTerminated Phase = "terminated"
)

var allowedPhaseTransitions = map[Phase]map[Phase]bool{
	"": {
		PhaseQueued:     true,
		PhaseTerminated: true,
	},
	PhaseQueued: {
		PhaseProbing:    true,
		PhaseTerminated: true,
	},
	PhaseProbing: {
		PhaseFetching:   true,
		PhaseWaiting:    true,
		PhaseTerminated: true,
	},
	PhaseFetching: {
		PhaseWaiting:    true,
		PhaseTerminated: true,
	},
	PhaseWaiting: {
		PhaseQueued:     true,
		PhaseTerminated: true,
	},
	// no way out of terminated
	PhaseTerminated: {},
}

func CanTransitionPhase(from, to Phase) bool {
	next, ok := allowedPhaseTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TerminalReason explains why a worker stopped
type TerminalReason string

const (
	ReasonNone     TerminalReason = ""
	ReasonAborted  TerminalReason = "aborted"
	ReasonShutdown TerminalReason = "shutdown"
)

// ChannelStatus is a read-only snapshot of a worker's runtime state
type ChannelStatus struct {
	Channel             ChannelRef     `json:"channel"`
	Phase               Phase          `json:"phase"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	Backoff             time.Duration  `json:"backoff"`
	NextProbeAt         time.Time      `json:"next_probe_at,omitempty"`
	Downloaded          int            `json:"downloaded"`
	LastError           string         `json:"last_error,omitempty"`
	Reason              TerminalReason `json:"reason,omitempty"`
	Cause               string         `json:"cause,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Aborted reports whether the worker terminated on an AbortChannel verdict
func (s ChannelStatus) Aborted() bool {
	return s.Phase == PhaseTerminated && s.Reason == ReasonAborted
}

// Label is the short state shown on status lines: active, waiting or aborted
func (s ChannelStatus) Label() string {
	switch s.Phase {
	case PhaseProbing, PhaseFetching:
		return "active"
	case PhaseQueued, PhaseWaiting:
		return "waiting"
	case PhaseTerminated:
		if s.Reason == ReasonAborted {
			return "aborted"
		}
		return "stopped"
	default:
		return "pending"
	}
}

// TransitionPhase moves status to the next phase if the state machine allows it
func TransitionPhase(status *ChannelStatus, to Phase) error {
	from := status.Phase
	if !CanTransitionPhase(from, to) {
		return fmt.Errorf("invalid worker phase transition: %q -> %q (channel=%s)", from, to, status.Channel)
	}
	status.Phase = to
	status.UpdatedAt = time.Now().UTC()
	return nil
}

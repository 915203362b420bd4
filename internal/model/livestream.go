package model

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// ChannelRef identifies a remote channel to monitor (URL or handle)
type ChannelRef string

func (c ChannelRef) String() string {
	return string(c)
}

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9._@-]+`)

// DirName returns the per-channel output directory name.
// The mapping is deterministic so archives can be audited without the ledger.
func (c ChannelRef) DirName() string {
	raw := strings.TrimSpace(string(c))
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		name := ""
		for _, s := range segments {
			// "/@name/streams" and "/channel/UCxxx/streams" both resolve to the identifying segment
			if s == "" || s == "streams" || s == "live" || s == "videos" || s == "channel" || s == "c" || s == "user" {
				continue
			}
			name = s
			break
		}
		if name == "" {
			name = u.Host
		}
		raw = name
	} else {
		raw = path.Base(raw)
	}

	raw = strings.TrimPrefix(raw, "@")
	raw = unsafeDirChars.ReplaceAllString(raw, "_")
	raw = strings.Trim(raw, "._")
	if raw == "" {
		return "unknown"
	}
	return raw
}

// Liveness classifies a candidate item
type Liveness string

const (
	LivenessLive      Liveness = "live"
	LivenessScheduled Liveness = "scheduled"
	LivenessEnded     Liveness = "ended"
	LivenessUnknown   Liveness = "unknown"
)

// ItemRef identifies one candidate piece of content belonging to a channel
type ItemRef struct {
	ID       string     `json:"id"`
	Channel  ChannelRef `json:"channel"`
	URL      string     `json:"url"`
	Title    string     `json:"title,omitempty"`
	Liveness Liveness   `json:"liveness"`
}

// LedgerEntry records one completed download
type LedgerEntry struct {
	ItemID      string    `json:"item_id" db:"item_id"`
	ChannelID   string    `json:"channel_id" db:"channel_id"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// FetchStatus tags a FetchOutcome
type FetchStatus string

const (
	FetchSuccess               FetchStatus = "success"
	FetchSkippedAlreadyPresent FetchStatus = "skipped_already_present"
	FetchRetryableFailure      FetchStatus = "retryable_failure"
	FetchPermanentFailure      FetchStatus = "permanent_failure"
)

// FetchOutcome is the result of one fetch attempt
type FetchOutcome struct {
	Status FetchStatus
	Path   string // set on success
	Err    error  // set on failures
}

func Success(path string) FetchOutcome {
	return FetchOutcome{Status: FetchSuccess, Path: path}
}

func SkippedAlreadyPresent(path string) FetchOutcome {
	return FetchOutcome{Status: FetchSkippedAlreadyPresent, Path: path}
}

func RetryableFailure(err error) FetchOutcome {
	return FetchOutcome{Status: FetchRetryableFailure, Err: err}
}

func PermanentFailure(err error) FetchOutcome {
	return FetchOutcome{Status: FetchPermanentFailure, Err: err}
}

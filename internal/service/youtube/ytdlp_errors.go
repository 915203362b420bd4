package youtube

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/service/common"
)

type stage string

const (
	stageProbe stage = "probe"
	stageFetch stage = "fetch"
)

// stderrRule maps a yt-dlp diagnostic to a failure code.
// yt-dlp only reports failures as text, so this table is the single place
// where messages are inspected; everything downstream switches on codes.
type stderrRule struct {
	needles []string
	code    string
}

var stderrRules = []stderrRule{
	{[]string{"this live event will begin", "premieres in", "scheduled to start", "waiting for scheduled stream"}, apperrors.CodeNotYetLive},
	{[]string{"no active livestream", "does not have a streams tab", "does not have a live tab", "is not currently live"}, apperrors.CodeQuiescent},
	{[]string{"http error 429", "too many requests", "rate-limit", "rate limit", "confirm you're not a bot", "confirm you’re not a bot"}, apperrors.CodeRateLimited},
	{[]string{"this channel does not exist", "channel was terminated", "account has been terminated", "account associated with this video has been terminated", "this channel is not available"}, apperrors.CodeChannelUnavailable},
	{[]string{"video unavailable", "private video", "video has been removed", "this video is not available", "available in your country", "members-only", "join this channel", "sign in to confirm your age", "copyright", "unsupported url", "requested format is not available"}, apperrors.CodeItemUnavailable},
	{[]string{"timed out", "connection reset", "connection refused", "temporary failure in name resolution", "network is unreachable", "unable to download webpage", "incompleteread", "http error 5", "remote end closed connection", "ssl:"}, apperrors.CodeTransientNetwork},
}

// classifyStderr returns the failure code for yt-dlp's stderr, or "" when no rule applies
func classifyStderr(stderr string, st stage) string {
	text := strings.ToLower(stderr)
	for _, rule := range stderrRules {
		for _, needle := range rule.needles {
			if strings.Contains(text, needle) {
				return rule.code
			}
		}
	}
	if strings.Contains(text, "http error 404") {
		if st == stageProbe {
			return apperrors.CodeChannelUnavailable
		}
		return apperrors.CodeItemUnavailable
	}
	if strings.Contains(text, "http error 403") {
		return apperrors.CodeRateLimited
	}
	return ""
}

// classifyRunError turns a CmdRunner failure into a typed AppError
func classifyRunError(ctx context.Context, err error, st stage) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(context.DeadlineExceeded, apperrors.CodeTransientNetwork, "yt-dlp "+string(st)+" timed out")
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return apperrors.Wrap(ctx.Err(), apperrors.CodeTransientNetwork, "yt-dlp "+string(st)+" cancelled")
	}

	var cmdErr *common.CmdError
	if errors.As(err, &cmdErr) {
		if cmdErr.NotFound() {
			return apperrors.Wrap(err, apperrors.CodeConfiguration, "yt-dlp binary not found")
		}
		if code := classifyStderr(cmdErr.Stderr, st); code != "" {
			return apperrors.Wrap(err, code, "yt-dlp "+string(st)+" failed")
		}
	}

	// unrecognised failures stay unclassified so they are retried with backoff
	return apperrors.Wrap(err, apperrors.CodeExternal, "yt-dlp "+string(st)+" failed")
}

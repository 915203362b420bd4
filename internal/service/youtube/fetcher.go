package youtube

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// incomplete download suffixes written by yt-dlp and ffmpeg
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// Fetch downloads item to <destinationDir>/<item_id>.<ext>.
// A finished output file left by an earlier run is reused as a Success so
// that the caller records it.
func (s *Service) Fetch(ctx context.Context, item model.ItemRef, destinationDir string) model.FetchOutcome {
	if item.ID == "" {
		return model.PermanentFailure(apperrors.New(apperrors.CodeItemUnavailable, "item has no ID"))
	}
	if item.Liveness == model.LivenessScheduled {
		return model.RetryableFailure(apperrors.New(apperrors.CodeNotYetLive, "item "+item.ID+" has not started yet"))
	}

	if existing, ok := s.findOutput(destinationDir, item.ID); ok {
		s.log.Info().Str("item_id", item.ID).Str("path", existing).Msg("reusing finished output")
		return model.Success(existing)
	}

	if err := s.fs.MkdirAll(destinationDir, 0755); err != nil {
		return model.RetryableFailure(apperrors.Wrap(err, apperrors.CodeInternal, "failed to create output directory"))
	}

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"--print", "after_move:filepath",
		"--format", s.cfg.Format,
		"--output", filepath.Join(destinationDir, "%(id)s.%(ext)s"),
	}
	if s.cfg.ConcurrentFragments > 0 {
		args = append(args, "--concurrent-fragments", strconv.Itoa(s.cfg.ConcurrentFragments))
	}
	if item.Liveness == model.LivenessLive {
		args = append(args, "--live-from-start")
	}
	args = append(args, s.commonArgs()...)
	args = append(args, item.URL)

	s.log.Info().Str("item_id", item.ID).Str("channel", item.Channel.String()).Msg("downloading")

	output, err := s.cmdRunner.Run(ctx, s.cfg.Binary, args...)
	if err != nil {
		return outcomeFor(classifyRunError(ctx, err, stageFetch))
	}

	path := lastNonEmptyLine(string(output))
	if path == "" {
		var ok bool
		if path, ok = s.findOutput(destinationDir, item.ID); !ok {
			return model.RetryableFailure(apperrors.New(apperrors.CodeExternal, "yt-dlp finished without an output file for "+item.ID))
		}
	}

	return model.Success(path)
}

// outcomeFor wraps a classified error in the matching FetchOutcome
func outcomeFor(err error) model.FetchOutcome {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeItemUnavailable, apperrors.CodeChannelUnavailable, apperrors.CodeConfiguration:
		return model.PermanentFailure(err)
	default:
		return model.RetryableFailure(err)
	}
}

// findOutput looks for a finished file named after the item
func (s *Service) findOutput(dir, itemID string) (string, bool) {
	matches, err := afero.Glob(s.fs, filepath.Join(dir, escapeGlob(itemID)+".*"))
	if err != nil {
		return "", false
	}
	sort.Strings(matches)

	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		if info, err := s.fs.Stat(m); err == nil && !info.IsDir() {
			return m, true
		}
	}
	return "", false
}

func isPartial(name string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	// intermediate format streams look like <id>.f137.mp4
	parts := strings.Split(filepath.Base(name), ".")
	return len(parts) > 2 && formatStream.MatchString(parts[len(parts)-2])
}

var formatStream = regexp.MustCompile(`^f\d+(-\d+)?$`)

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

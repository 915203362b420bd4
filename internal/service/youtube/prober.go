package youtube

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// Probe lists the channel's recent livestreams, most recent first.
// Regular uploads (live_status "not_live") are dropped.
func (s *Service) Probe(ctx context.Context, channel model.ChannelRef) ([]model.ItemRef, error) {
	if channel == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "channel reference is required")
	}

	args := []string{"--flat-playlist", "--dump-json", "--ignore-no-formats-error"}
	if s.maxItems > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(s.maxItems))
	}
	args = append(args, s.commonArgs()...)
	args = append(args, StreamsURL(channel))

	output, err := s.cmdRunner.Run(ctx, s.cfg.Binary, args...)
	if err != nil {
		return nil, classifyRunError(ctx, err, stageProbe)
	}

	items, err := parseEntries(output, channel)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("channel", channel.String()).Int("items", len(items)).Msg("probe finished")
	return items, nil
}

func parseEntries(output []byte, channel model.ChannelRef) ([]model.ItemRef, error) {
	var items []model.ItemRef
	seen := make(map[string]struct{})

	// yt-dlp outputs one JSON object per line
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry ytDlpEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeExternal, "failed to parse yt-dlp output")
		}
		if entry.ID == "" {
			continue
		}
		if _, dup := seen[entry.ID]; dup {
			continue
		}

		liveness, keep := livenessOf(entry)
		if !keep {
			continue
		}
		seen[entry.ID] = struct{}{}

		items = append(items, model.ItemRef{
			ID:       entry.ID,
			Channel:  channel,
			URL:      itemURL(entry),
			Title:    entry.Title,
			Liveness: liveness,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExternal, "failed to read yt-dlp output")
	}

	return items, nil
}

// livenessOf maps yt-dlp's live_status; keep is false for regular uploads
func livenessOf(entry ytDlpEntry) (model.Liveness, bool) {
	switch entry.LiveStatus {
	case "is_live":
		return model.LivenessLive, true
	case "is_upcoming":
		return model.LivenessScheduled, true
	case "was_live", "post_live":
		return model.LivenessEnded, true
	case "not_live":
		return "", false
	}

	switch {
	case entry.IsLive != nil && *entry.IsLive:
		return model.LivenessLive, true
	case entry.WasLive != nil && *entry.WasLive:
		return model.LivenessEnded, true
	case entry.WasLive != nil:
		return "", false
	default:
		return model.LivenessUnknown, true
	}
}

func itemURL(entry ytDlpEntry) string {
	switch {
	case entry.WebpageURL != "":
		return entry.WebpageURL
	case entry.URL != "":
		return entry.URL
	default:
		return "https://www.youtube.com/watch?v=" + entry.ID
	}
}

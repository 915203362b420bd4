package youtube

import (
	"context"
	"strings"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
)

// CheckRequirements verifies that yt-dlp and ffmpeg are installed and
// returns the yt-dlp version
func (s *Service) CheckRequirements(ctx context.Context) (string, error) {
	var missing []string
	for _, bin := range []string{s.cfg.Binary, "ffmpeg"} {
		if _, err := s.cmdRunner.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return "", apperrors.New(apperrors.CodeConfiguration,
			"required tools not found in PATH: "+strings.Join(missing, ", "))
	}

	out, err := s.cmdRunner.Run(ctx, s.cfg.Binary, "--version")
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to run "+s.cfg.Binary+" --version")
	}
	return strings.TrimSpace(string(out)), nil
}

package youtube

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/Mkrolick/co-streamer/internal/config"
	"github.com/Mkrolick/co-streamer/internal/logging"
	"github.com/Mkrolick/co-streamer/internal/model"
	"github.com/Mkrolick/co-streamer/internal/service/common"
)

// Service probes channels and fetches items by shelling out to yt-dlp
type Service struct {
	cmdRunner common.CmdRunner
	fs        afero.Fs
	cfg       config.YtDlpConfig
	maxItems  int
	log       zerolog.Logger
}

// NewService creates a Service that runs the real yt-dlp binary
func NewService(cfg config.YtDlpConfig, maxItems int, log zerolog.Logger) *Service {
	return NewServiceWithCmdRunner(common.NewCmdRunner(), afero.NewOsFs(), cfg, maxItems, log)
}

// NewServiceWithCmdRunner creates a Service with custom CmdRunner and filesystem (for testing)
func NewServiceWithCmdRunner(cmdRunner common.CmdRunner, fs afero.Fs, cfg config.YtDlpConfig, maxItems int, log zerolog.Logger) *Service {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	return &Service{
		cmdRunner: cmdRunner,
		fs:        fs,
		cfg:       cfg,
		maxItems:  maxItems,
		log:       logging.Component(log, "ytdlp"),
	}
}

// ytDlpEntry represents one line of yt-dlp --flat-playlist --dump-json output
type ytDlpEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
	LiveStatus string `json:"live_status"`
	WasLive    *bool  `json:"was_live"`
	IsLive     *bool  `json:"is_live"`
}

// StreamsURL expands a bare channel name or handle to its streams tab.
// Full URLs are returned unchanged.
func StreamsURL(channel model.ChannelRef) string {
	raw := strings.TrimSpace(channel.String())
	if strings.Contains(raw, "://") {
		return raw
	}
	if strings.HasPrefix(raw, "www.") || strings.HasPrefix(raw, "youtube.com/") {
		return "https://" + raw
	}
	return "https://www.youtube.com/@" + strings.TrimPrefix(raw, "@") + "/streams"
}

func (s *Service) commonArgs() []string {
	var args []string
	if s.cfg.CookiesFile != "" {
		args = append(args, "--cookies", s.cfg.CookiesFile)
	}
	return args
}

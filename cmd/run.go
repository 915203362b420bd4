package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Mkrolick/co-streamer/internal/channels"
	"github.com/Mkrolick/co-streamer/internal/config"
	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/ledger"
	"github.com/Mkrolick/co-streamer/internal/orchestrator"
	"github.com/Mkrolick/co-streamer/internal/server"
	"github.com/Mkrolick/co-streamer/internal/service/youtube"
)

// runCmd starts the orchestrator
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor channels and archive their livestreams",
	Long: `Probe every channel in the channel list, download new livestreams and
record them in the ledger. Runs until interrupted; a second interrupt exits
without waiting for in-flight downloads.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		log := newLogger(cfg)

		channelList, err := channels.NewLoader().Load(cfg.ChannelsFile)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(log)
		defer stop()

		yt := youtube.NewService(cfg.YtDlp, cfg.Ingest.MaxItemsPerChannel, log)
		version, err := yt.CheckRequirements(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("yt_dlp_version", version).Int("channels", len(channelList)).Msg("requirements satisfied")

		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to create output directory")
		}

		l, err := ledger.Open(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := l.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close ledger")
			}
		}()

		o := orchestrator.New(yt, yt, l, orchestrator.OptionsFromConfig(cfg), log)

		if cfg.Status.Addr != "" {
			srv := server.New(cfg.Status.Addr, o, o.Metrics().Registry, log)
			go func() {
				if err := srv.Start(); err != nil {
					log.Error().Err(err).Msg("status server stopped")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("status server shutdown")
				}
			}()
		}

		report, err := o.Run(ctx, channelList)
		if err != nil {
			return err
		}

		orchestrator.RenderStatus(cmd.OutOrStdout(), report.Channels, time.Now())
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d downloaded in %s\n",
			report.RunID, report.Downloaded, report.FinishedAt.Sub(report.StartedAt).Round(time.Second))

		if report.ExitCode() != 0 {
			return fmt.Errorf("all %d channels aborted", len(report.Channels))
		}
		return nil
	},
}

// applyRunFlags lets explicitly set flags override the config file
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("channels") {
		if cfg.ChannelsFile, err = flags.GetString("channels"); err != nil {
			return err
		}
	}
	if flags.Changed("output") {
		if cfg.OutputDir, err = flags.GetString("output"); err != nil {
			return err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Ingest.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return err
		}
	}
	if flags.Changed("max-items") {
		if cfg.Ingest.MaxItemsPerChannel, err = flags.GetInt("max-items"); err != nil {
			return err
		}
	}
	if flags.Changed("poll-interval") {
		if cfg.Ingest.PollInterval, err = flags.GetDuration("poll-interval"); err != nil {
			return err
		}
	}
	if flags.Changed("status-addr") {
		if cfg.Status.Addr, err = flags.GetString("status-addr"); err != nil {
			return err
		}
	}
	return nil
}

// signalContext is cancelled on the first SIGINT/SIGTERM; the second exits
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.Warn().Str("signal", sig.String()).Msg("shutting down after in-flight downloads, interrupt again to force")
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			log.Error().Str("signal", sig.String()).Msg("forced exit")
			os.Exit(130)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	}
}

func init() {
	runCmd.Flags().String("channels", "", "CSV file with a channel_url column")
	runCmd.Flags().String("output", "", "directory that receives downloads")
	runCmd.Flags().Int("concurrency", 0, "maximum channels probing or fetching at once")
	runCmd.Flags().Int("max-items", 0, "maximum candidate items per channel per probe")
	runCmd.Flags().Duration("poll-interval", 0, "delay between probes of a quiet channel")
	runCmd.Flags().String("status-addr", "", "serve /status and /metrics on this address")

	rootCmd.AddCommand(runCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Mkrolick/co-streamer/internal/config"
	"github.com/Mkrolick/co-streamer/internal/logging"
)

var configPath string

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "co-streamer",
	Short: "Archive livestreams from a list of channels",
	Long: `co-streamer watches a list of channels, downloads every livestream
they publish and records each completed download in a ledger so nothing is
fetched twice.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.co-streamer/config.yaml)")
}

// loadConfig reads the config file selected by --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

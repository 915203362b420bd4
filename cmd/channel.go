package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mkrolick/co-streamer/internal/model"
	"github.com/Mkrolick/co-streamer/internal/service/youtube"
)

// channelCmd represents the channel command
var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Channel operations",
	Long:  `Inspect monitored channels without running the orchestrator.`,
}

// channelProbeCmd lists a channel's candidate items once
var channelProbeCmd = &cobra.Command{
	Use:   "probe [CHANNEL]",
	Short: "List a channel's current livestream candidates",
	Long:  `Probe a channel URL or handle once with yt-dlp and print the candidate items as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = cfg.Ingest.MaxItemsPerChannel
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Ingest.ProbeTimeout)
		defer cancel()

		yt := youtube.NewService(cfg.YtDlp, limit, log)
		items, err := yt.Probe(ctx, model.ChannelRef(args[0]))
		if err != nil {
			return fmt.Errorf("failed to probe channel: %w", err)
		}

		if len(items) == 0 {
			fmt.Println("No livestreams found.")
			return nil
		}

		// Display result as JSON
		result, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}

		fmt.Printf("Found %d item(s):\n%s\n", len(items), string(result))
		return nil
	},
}

func init() {
	channelProbeCmd.Flags().Int("limit", 0, "Maximum number of items to list (default ingest.max_items_per_channel)")

	channelCmd.AddCommand(channelProbeCmd)
	rootCmd.AddCommand(channelCmd)
}

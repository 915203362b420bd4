package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/ledger"
)

// ledgerCmd represents the ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain the archive ledger",
}

// ledgerListCmd lists recorded downloads
var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		l, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer l.Close()

		channel, _ := cmd.Flags().GetString("channel")
		entries, err := l.Entries(ctx, channel)
		if err != nil {
			return fmt.Errorf("failed to list ledger entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No downloads recorded.")
			return nil
		}

		result, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}

		fmt.Printf("Found %d entr(ies):\n%s\n", len(entries), string(result))
		return nil
	},
}

// ledgerCheckCmd reports whether one item is recorded
var ledgerCheckCmd = &cobra.Command{
	Use:   "check [ITEM_ID]",
	Short: "Check whether an item has been downloaded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		l, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer l.Close()

		done, err := l.HasDownloaded(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to check ledger: %w", err)
		}

		if done {
			fmt.Printf("%s: downloaded\n", args[0])
		} else {
			fmt.Printf("%s: not downloaded\n", args[0])
		}
		return nil
	},
}

// ledgerMigrateCmd applies the Postgres ledger schema
var ledgerMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres ledger schema",
	Long:  `Run the embedded migrations against ledger.database_url. Use --down to revert them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Ledger.DatabaseURL == "" {
			return apperrors.New(apperrors.CodeConfiguration, "ledger.database_url is not set")
		}

		down, _ := cmd.Flags().GetBool("down")
		if down {
			if err := ledger.MigrateDown(cfg.Ledger.DatabaseURL); err != nil {
				return err
			}
			fmt.Println("Ledger schema reverted.")
			return nil
		}

		if err := ledger.Migrate(cfg.Ledger.DatabaseURL); err != nil {
			return err
		}
		version, dirty, err := ledger.SchemaVersion(cfg.Ledger.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Printf("Ledger schema at version %d (dirty=%t)\n", version, dirty)
		return nil
	},
}

func openLedger(ctx context.Context) (ledger.Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return ledger.Open(ctx, cfg, newLogger(cfg))
}

func init() {
	ledgerListCmd.Flags().String("channel", "", "Only list entries recorded for this channel")
	ledgerMigrateCmd.Flags().Bool("down", false, "Revert all migrations")

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerCheckCmd)
	ledgerCmd.AddCommand(ledgerMigrateCmd)
	rootCmd.AddCommand(ledgerCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Mkrolick/co-streamer/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
	Long:  `Manage configuration settings for co-streamer.`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init [DATABASE_URL]",
	Short: "Initialize configuration file",
	Long: `Create a new configuration file. Passing a DATABASE_URL selects the
postgres ledger backend; otherwise the ledger is a local file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var databaseURL string
		if len(args) > 0 {
			databaseURL = args[0]
		}

		if err := config.InitConfig(databaseURL); err != nil {
			return err
		}

		configPath, err := config.GetConfigPath()
		if err != nil {
			return err
		}

		fmt.Printf("Created configuration file: %s\n", configPath)
		fmt.Println("Please edit channels_file and output_dir in this file before running.")

		return nil
	},
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the configuration file path and the effective settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			p, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			path = p
		}

		fmt.Printf("Configuration file: %s\n\n", path)

		// Load and display current config
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Ledger.DatabaseURL != "" {
			cfg.Ledger.DatabaseURL = redactURL(cfg.Ledger.DatabaseURL)
		}
		if cfg.Ledger.RedisURL != "" {
			cfg.Ledger.RedisURL = redactURL(cfg.Ledger.RedisURL)
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to format configuration: %w", err)
		}
		fmt.Print(string(out))

		if err := cfg.Validate(); err != nil {
			fmt.Printf("\n%s %v\n", errorStyle.Render("Invalid:"), err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

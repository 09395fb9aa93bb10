package cmd

import (
	"fmt"

	"github.com/atikulmunna/loomwatch/internal/config"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		out := cmd.OutOrStdout()
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "config file:          %s\n", used)
		}
		fmt.Fprintf(out, "log_path:             %s\n", cfg.LogPath)
		fmt.Fprintf(out, "log_format:           %s\n", cfg.LogFormat)
		fmt.Fprintf(out, "error_rate_threshold: %v%%\n", cfg.ErrorRateThreshold)
		fmt.Fprintf(out, "window_size:          %d\n", cfg.WindowSize)
		fmt.Fprintf(out, "min_samples:          %d\n", cfg.MinSamples)
		fmt.Fprintf(out, "alert_cooldown:       %s\n", cfg.AlertCooldown)
		fmt.Fprintf(out, "maintenance_mode:     %t\n", cfg.MaintenanceMode)
		fmt.Fprintf(out, "webhook:              %s\n", redact(cfg.WebhookURL))
		fmt.Fprintf(out, "listen_addr:          %s\n", orNone(cfg.ListenAddr))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// redact hides the webhook path, which carries the secret token.
func redact(url string) string {
	if url == "" {
		return "(none, alerts go to stdout)"
	}
	if len(url) > 24 {
		return url[:24] + "..."
	}
	return url
}

func orNone(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}

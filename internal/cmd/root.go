package cmd

import (
	"fmt"
	"os"

	"github.com/atikulmunna/loomwatch/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string

	// v holds defaults, environment bindings, the optional config file and
	// flag overrides.
	v = config.NewViper()
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "loomwatch",
	Short: "loomwatch - nginx failover and 5xx alerting",
	Long: `loomwatch follows an nginx access log, detects when traffic fails over
between upstream pools and when the upstream 5xx rate climbs past a threshold,
and posts deduplicated, rate-limited alerts to a Slack-compatible webhook.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./loomwatch.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment")
}

func initConfig() {
	cobra.CheckErr(config.LoadDotEnv(envFile))
	cobra.CheckErr(config.ReadFile(v, cfgFile))
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atikulmunna/loomwatch/internal/aggregator"
	"github.com/atikulmunna/loomwatch/internal/alert"
	"github.com/atikulmunna/loomwatch/internal/config"
	"github.com/atikulmunna/loomwatch/internal/hub"
	"github.com/atikulmunna/loomwatch/internal/logging"
	"github.com/atikulmunna/loomwatch/internal/monitor"
	"github.com/atikulmunna/loomwatch/internal/notify"
	"github.com/atikulmunna/loomwatch/internal/output"
	"github.com/atikulmunna/loomwatch/internal/parser"
	"github.com/atikulmunna/loomwatch/internal/pool"
	"github.com/atikulmunna/loomwatch/internal/server"
	"github.com/atikulmunna/loomwatch/internal/tailer"
	"github.com/atikulmunna/loomwatch/internal/watcher"
	"github.com/atikulmunna/loomwatch/internal/window"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Follow the access log and raise alerts",
	Long: `Follow an nginx access log (or the newest file matching a glob) across
rotation and truncation, and alert on pool failovers and high upstream 5xx rates.

Examples:
  loomwatch watch /var/log/nginx/access.log
  loomwatch watch "/var/log/nginx/*access.log" --log-format json
  SLACK_WEBHOOK_URL=https://hooks.slack.com/... loomwatch watch --listen :9090`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.String("log-path", "", "access log to follow (overrides WATCH_LOG_PATH)")
	f.String("log-format", "", "access log schema: text or json")
	f.Float64("threshold", 0, "5xx percentage that triggers an alert")
	f.Int("window-size", 0, "requests kept in the sliding window")
	f.Int("min-samples", 0, "requests needed before the ratio is evaluated")
	f.Int("cooldown", 0, "minimum seconds between alerts of one kind")
	f.Bool("maintenance", false, "suppress all alerts")
	f.String("webhook-url", "", "Slack-compatible incoming webhook")
	f.Bool("start-at-end", false, "skip content already in the file at startup")
	f.String("listen", "", "serve /healthz, /api/stats and /ws on this address")
	f.StringP("output", "o", "", "local alert rendering: text or json")
	f.String("log-level", "", "debug, info, warn or error")

	for key, flag := range map[string]string{
		"log_path":             "log-path",
		"log_format":           "log-format",
		"error_rate_threshold": "threshold",
		"window_size":          "window-size",
		"min_samples":          "min-samples",
		"alert_cooldown_sec":   "cooldown",
		"maintenance_mode":     "maintenance",
		"slack_webhook_url":    "webhook-url",
		"start_at_end":         "start-at-end",
		"listen_addr":          "listen",
		"alert_output":         "output",
		"log_level":            "log-level",
	} {
		cobra.CheckErr(v.BindPFlag(key, f.Lookup(flag)))
	}

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		v.Set("log_path", args[0])
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Global(cfg.LogLevel, cfg.LogOutputFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maintenance := config.NewMaintenance(cfg.MaintenanceMode)
	config.WatchMaintenance(v, maintenance, logging.Component(logger, "config"))

	p, err := parser.New(cfg.LogFormat)
	if err != nil {
		return err
	}

	var notifier alert.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, cfg.NotifyTimeout)
	} else {
		notifier = notify.NewConsole(output.New(cfg.AlertOutput, os.Stdout))
		logger.Warn().Msg("webhook_not_configured_alerts_go_to_stdout")
	}
	dispatcher := alert.NewDispatcher(notifier, cfg.AlertCooldown, maintenance.Active, logging.Component(logger, "dispatcher"))

	h := hub.New(logging.Component(logger, "hub"))

	opts := []tailer.Option{
		tailer.WithPollInterval(cfg.PollInterval),
		tailer.WithWaitInterval(cfg.WaitInterval),
		tailer.WithStartAtEnd(cfg.StartAtEnd),
		tailer.WithLogger(logging.Component(logger, "tailer")),
	}
	if w, err := watcher.New(cfg.LogPath, logging.Component(logger, "watcher")); err != nil {
		logger.Warn().Err(err).Msg("file_notifications_unavailable_polling_only")
	} else {
		go w.Start(ctx)
		opts = append(opts, tailer.WithWake(w.Wake()))
	}
	t := tailer.New(cfg.LogPath, opts...)

	agg := aggregator.New(aggregator.Sources{
		Reopens:     t.Reopens,
		Dropped:     h.Dropped,
		Maintenance: maintenance.Active,
	})

	mon := monitor.New(monitor.Options{
		Parser:     p,
		Window:     window.New(cfg.WindowSize, cfg.MinSamples),
		Pools:      pool.New(),
		Dispatcher: dispatcher,
		Threshold:  cfg.ErrorRateThreshold,
		Recorder:   agg,
		Publisher:  h,
		Logger:     logging.Component(logger, "monitor"),
	})

	logger.Info().
		Str("log_path", cfg.LogPath).
		Str("log_format", cfg.LogFormat).
		Float64("threshold", cfg.ErrorRateThreshold).
		Int("window_size", cfg.WindowSize).
		Int("min_samples", cfg.MinSamples).
		Dur("cooldown", cfg.AlertCooldown).
		Bool("webhook", cfg.WebhookURL != "").
		Msg("loomwatch_starting")
	if cfg.MaintenanceMode {
		logger.Warn().Msg("maintenance_mode_enabled_alerts_suppressed")
	}

	if cfg.ListenAddr != "" {
		srv := server.New(h, agg, cfg.ListenAddr, logging.Component(logger, "server"))
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("status_server_failed")
			}
		}()
	}

	go t.Start(ctx)

	err = mon.Run(ctx, t.Lines())
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("loomwatch_stopped")
		return nil
	}
	return err
}

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/feedstats/internal/app"
	"github.com/wesleyorama2/feedstats/internal/config"
	"github.com/wesleyorama2/feedstats/internal/logging"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Subscribe to the feed and print periodic statistics",
		Long: `Connect to the book stream, subscribe to every available instrument and
report message and instrument rates until interrupted.

Live stream (credentials from FEEDSTATS_API_KEY / FEEDSTATS_CLIENT_ID):
  feedstats run --config feedstats.yaml

Replay a capture with a known universe:
  feedstats run --input capture.jsonl --universe 250 --mode stats

Replay at roughly the recorded pace:
  feedstats run --input capture.jsonl --universe 250 --replay-rate 2000`,
		RunE: runFeed,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	cmd.Flags().StringP("mode", "m", "", "Output mode: stats, ws or both")
	cmd.Flags().String("url", "", "Websocket stream URL")
	cmd.Flags().StringP("input", "i", "", "Replay newline-delimited messages from a file (- for stdin)")
	cmd.Flags().Int("universe", 0, "Instrument universe for replayed input")
	cmd.Flags().Float64("replay-rate", 0, "Pace replayed input at this many lines per second (0 = unpaced)")
	cmd.Flags().String("metrics-addr", "", "Serve /metrics, /stats and /healthz on this address")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().Bool("no-color", false, "Disable colored reports")

	return cmd
}

func runFeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := app.SourceFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, logger, app.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	return a.Run(ctx, src)
}

// loadRunConfig reads the config file (or defaults), then applies the
// environment and finally the command-line flags.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.ApplyEnv(cfg, os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		m, err := config.ParseMode(mode)
		if err != nil {
			return nil, err
		}
		cfg.Mode = m
	}
	if flags.Changed("url") {
		cfg.Feed.URL, _ = flags.GetString("url")
	}
	if flags.Changed("input") {
		cfg.Feed.Input, _ = flags.GetString("input")
	}
	if flags.Changed("universe") {
		cfg.Universe, _ = flags.GetInt("universe")
	}
	if flags.Changed("replay-rate") {
		cfg.Feed.ReplayRate, _ = flags.GetFloat64("replay-rate")
	}
	if flags.Changed("metrics-addr") {
		cfg.Server.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if noColor, _ := flags.GetBool("no-color"); noColor {
		cfg.Report.Color = "never"
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Command fakefeed serves an emulated market-data book stream for local runs:
//
//	go run ./scripts/fakefeed --instruments 500 --rate 2000
//	feedstats run --url ws://127.0.0.1:8765/stream
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/feedstats/internal/feedtest"
	"github.com/wesleyorama2/feedstats/internal/logging"
	"github.com/wesleyorama2/feedstats/internal/server"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		addr        string
		instruments int
		rate        float64
		updates     int
		token       string
		apiKey      string
		clientID    string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:          "fakefeed",
		Short:        "Serve an emulated book stream",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logLevel, nil)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			emu := feedtest.NewServer(feedtest.Config{
				Instruments: feedtest.Tickers(instruments),
				APIKey:      apiKey,
				ClientID:    clientID,
				Token:       token,
				Updates:     updates,
				UpdateRate:  rate,
			}, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("serving emulated feed",
				zap.String("stream", feedtest.StreamPath),
				zap.String("auth", feedtest.AuthPath),
				zap.Int("instruments", instruments),
				zap.Float64("rate", rate))
			return server.Run(ctx, server.NewServer(addr, emu.Handler()), logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "listen address")
	cmd.Flags().IntVar(&instruments, "instruments", 100, "number of instruments offered")
	cmd.Flags().Float64Var(&rate, "rate", 1000, "live updates per second (0 for unpaced)")
	cmd.Flags().IntVar(&updates, "updates", 0, "close the stream after this many updates (0 for never)")
	cmd.Flags().StringVar(&token, "token", "", "token required as websocket subprotocol")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "accepted API key")
	cmd.Flags().StringVar(&clientID, "client-id", "", "accepted client id")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	return cmd
}

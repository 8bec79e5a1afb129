package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gonzalop/drop/server"
	"github.com/gonzalop/drop/tlsconfig"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "dropserver",
		Short: "Two-channel TLS file-transfer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(); err != nil {
				return err
			}
			return run(cfg)
		},
	}
	addFlags(&cfg, cmd.Flags())
	return cmd
}

func run(cfg Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("dropserver: build logger: %w", err)
	}
	defer logger.Sync()

	tlsCfg, err := tlsconfig.Server(cfg.CertFile)
	if err != nil {
		return fmt.Errorf("dropserver: load certificate: %w", err)
	}

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.BandwidthLimit > 0 {
		opts = append(opts, server.WithBandwidthLimit(cfg.BandwidthLimit))
	}

	srv, err := server.New(
		net.JoinHostPort("", fmt.Sprint(cfg.ControlPort)),
		net.JoinHostPort("", fmt.Sprint(cfg.DataPort)),
		cfg.DataPort,
		tlsCfg,
		opts...,
	)
	if err != nil {
		return fmt.Errorf("dropserver: construct server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting dropserver",
		zap.Int("control_port", cfg.ControlPort),
		zap.Int("transfer_port", cfg.DataPort),
	)

	err = srv.Serve(ctx)
	logger.Info("dropserver shutting down")
	return err
}

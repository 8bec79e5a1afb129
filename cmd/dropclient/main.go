package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gonzalop/drop/client"
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
		Use:   "dropclient",
		Short: "Interactive client for the two-channel TLS file-transfer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.resolve(); err != nil {
				return err
			}
			return run(cfg)
		},
	}
	addFlags(&cfg, cmd.Flags())
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("port")
	return cmd
}

func run(cfg Config) error {
	tlsCfg, err := tlsconfig.Client(cfg.TrustFile, cfg.Address)
	if err != nil {
		return fmt.Errorf("dropclient: load trust anchor: %w", err)
	}

	var opts []client.Option
	if cfg.BandwidthLimit > 0 {
		opts = append(opts, client.WithBandwidthLimit(cfg.BandwidthLimit))
	}

	addr := net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port))
	sess, err := client.Dial(addr, tlsCfg, opts...)
	if err != nil {
		return fmt.Errorf("dropclient: connect to %s: %w", addr, err)
	}
	defer sess.Close()

	fmt.Printf("Connected to File Server at %s on port %d\n", cfg.Address, cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- sess.RunREPL(os.Stdin, client.Prompt(cfg.Address)) }()

	select {
	case err := <-done:
		return err
	case <-sigCh:
		fmt.Println("\nClosing connection")
		sess.Close()
		return nil
	}
}

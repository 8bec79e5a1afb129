package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// trustFileEnvVar names the environment variable the client reads its
// trust-anchor PEM path from (spec.md §6 leaves the exact name unspecified).
const trustFileEnvVar = "DROP_TLS_TRUST_FILE"

// Config holds the validated settings for one dropclient run.
type Config struct {
	Address        string
	Port           int
	TrustFile      string
	BandwidthLimit int64
}

// addFlags wires Config's CLI-settable fields to a flag set. address and
// port carry no default: spec.md §6 lists both as required flags, marked
// with cmd.MarkFlagRequired in newRootCmd.
func addFlags(cfg *Config, flags *pflag.FlagSet) {
	flags.StringVarP(&cfg.Address, "address", "a", "", "server address")
	flags.IntVarP(&cfg.Port, "port", "p", 0, "server control port")
	flags.Int64Var(&cfg.BandwidthLimit, "bandwidth-limit", 0, "cap data-channel throughput in bytes per second (0 = unlimited)")
}

func (c *Config) resolve() error {
	c.TrustFile = os.Getenv(trustFileEnvVar)
	if c.TrustFile == "" {
		return fmt.Errorf("%s must be set to the server's trust-anchor PEM path", trustFileEnvVar)
	}
	return c.validate()
}

func (c *Config) validate() error {
	if c.Address == "" {
		return fmt.Errorf("address must not be empty")
	}
	if c.Port < 1024 {
		return fmt.Errorf("port must be >= 1024, got %d", c.Port)
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// certFileEnvVar names the environment variable the server reads its
// combined TLS certificate+key PEM path from (spec.md §6 leaves the exact
// name unspecified).
const certFileEnvVar = "DROP_TLS_CERT_FILE"

// Config holds the validated settings for one dropserver run.
type Config struct {
	ControlPort    int
	DataPort       int
	CertFile       string
	BandwidthLimit int64
}

// addFlags wires Config's CLI-settable fields to a flag set, mirroring the
// docker-compose plugin's AddFlags(opts, cmd.Flags()) shape.
func addFlags(cfg *Config, flags *pflag.FlagSet) {
	flags.IntVarP(&cfg.ControlPort, "port", "p", 8080, "control channel port")
	flags.IntVarP(&cfg.DataPort, "transfer-port", "t", 3000, "data channel port")
	flags.Int64Var(&cfg.BandwidthLimit, "bandwidth-limit", 0, "cap data-channel throughput in bytes per second (0 = unlimited)")
}

// resolve fills in the certificate path from the environment and validates
// the whole config, after flags have been parsed.
func (c *Config) resolve() error {
	c.CertFile = os.Getenv(certFileEnvVar)
	if c.CertFile == "" {
		return fmt.Errorf("%s must be set to the server's combined certificate+key PEM path", certFileEnvVar)
	}
	return c.validate()
}

func (c *Config) validate() error {
	if c.ControlPort < 1024 {
		return fmt.Errorf("control port must be >= 1024, got %d", c.ControlPort)
	}
	if c.DataPort < 1024 {
		return fmt.Errorf("transfer port must be >= 1024, got %d", c.DataPort)
	}
	if c.ControlPort == c.DataPort {
		return fmt.Errorf("control port and transfer port must differ, both are %d", c.ControlPort)
	}
	return nil
}

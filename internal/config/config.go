// Package config defines the host-driven parameters of the stack and
// how they're gathered from CLI flags.
package config

import (
	"errors"
	"flag"
	"time"

	"github.com/netlace/tcpstack/internal/tcp"
)

// Config bundles everything cmd/webget needs to bring up a connection.
type Config struct {
	Host string
	Path string

	MaxPayloadSize uint64
	InitialRTO     time.Duration
	ARPCacheTTL    time.Duration

	Verbose     bool
	MetricsAddr string
	MetricsOn   bool
}

// Defaults returns a Config populated with the stack's default tunables.
func Defaults() Config {
	return Config{
		MaxPayloadSize: tcp.DefaultMaxPayloadSize,
		InitialRTO:     tcp.DefaultInitialRTOMs * time.Millisecond,
		ARPCacheTTL:    30 * time.Second,
		MetricsAddr:    "localhost:0",
	}
}

// FromFlags parses args (normally os.Args[1:]) into a Config, starting
// from Defaults.
func FromFlags(args []string) (Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("webget", flag.ContinueOnError)
	host := fs.String("host", "", "host to fetch (required)")
	path := fs.String("path", "/", "path to request")
	maxPayload := fs.Uint64("max-payload-size", cfg.MaxPayloadSize, "max TCP payload bytes per segment")
	initialRTO := fs.Duration("initial-rto", cfg.InitialRTO, "initial retransmission timeout")
	arpTTL := fs.Duration("arp-cache-ttl", cfg.ARPCacheTTL, "ARP cache entry lifetime (stored in the config only; interfaces use their fixed 30s timeout)")
	verbose := fs.Bool("v", false, "enable verbose logging")
	metricsEnable := fs.Bool("metrics-enable", false, "enable prometheus metrics")
	metricsAddr := fs.String("metrics-addr", cfg.MetricsAddr, "address to listen on for prometheus metrics")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Host = *host
	cfg.Path = *path
	cfg.MaxPayloadSize = *maxPayload
	cfg.InitialRTO = *initialRTO
	cfg.ARPCacheTTL = *arpTTL
	cfg.Verbose = *verbose
	cfg.MetricsOn = *metricsEnable
	cfg.MetricsAddr = *metricsAddr

	return cfg, cfg.Validate()
}

// Validate reports whether cfg is usable, mirroring the fail-fast
// validation style of the teacher's interval configs.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("config: host is required")
	}
	if c.MaxPayloadSize == 0 {
		return errors.New("config: max-payload-size must be positive")
	}
	if c.InitialRTO <= 0 {
		return errors.New("config: initial-rto must be positive")
	}
	return nil
}

// TCPConfig projects the relevant fields into a tcp.Config.
func (c Config) TCPConfig() tcp.Config {
	return tcp.Config{
		MaxPayloadSize: c.MaxPayloadSize,
		InitialRTOMs:   uint64(c.InitialRTO / time.Millisecond),
	}
}

// Package config parses the relay's tunables from a pflag.FlagSet: the
// system exposes no environment variables by default, so every tunable is
// a flag. The flag-set shape follows the teacher's internal/cli.Run pattern
// of building a fresh *pflag.FlagSet per invocation and binding typed
// accessors to it.
package config

import (
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/slamstream/relay/internal/activity"
	"github.com/slamstream/relay/internal/ingest"
	"github.com/slamstream/relay/internal/rpc"
	"github.com/slamstream/relay/internal/store"
)

// DefaultMaxMessageBytes is the minimum message size both directions of the
// transport must admit.
const DefaultMaxMessageBytes = 50 * 1024 * 1024

// DefaultListenAddr is the primary listen address; DefaultListenAddrAlt is
// the second, equivalent listener. Both accept the same traffic; the
// second exists only so a deployment can front one with a different
// load balancer policy if it wants to.
const (
	DefaultListenAddr    = ":8080"
	DefaultListenAddrAlt = ":8081"
)

// Config holds every tunable the relay accepts at startup.
type Config struct {
	Timeout        time.Duration // τ
	ChunkSize      int           // C
	StoreMaxChunks int           // M
	PollInterval   time.Duration
	VoxelEdge      float64 // v
	MaxMessageSize int
	WorkerPoolSize int
	ListenAddr     string
	ListenAddrAlt  string
	DisableAltPort bool
	LogLevel       string
}

// Default returns the built-in defaults: τ=5s, C=1000, M=10000, poll=100ms,
// v=0.01, max-message=50 MiB, worker pool size=10.
func Default() Config {
	return Config{
		Timeout:        activity.DefaultTimeout,
		ChunkSize:      ingest.DefaultChunkSize,
		StoreMaxChunks: store.DefaultMaxChunks,
		PollInterval:   100 * time.Millisecond,
		VoxelEdge:      ingest.DefaultVoxelEdge,
		MaxMessageSize: DefaultMaxMessageBytes,
		WorkerPoolSize: rpc.DefaultWorkerPoolSize,
		ListenAddr:     DefaultListenAddr,
		ListenAddrAlt:  DefaultListenAddrAlt,
		LogLevel:       "info",
	}
}

// Bind registers every tunable on fs, defaulted from Default(), and returns
// a Config pointer that is populated once fs.Parse has run. Mirrors the
// teacher's pattern of binding flag pointers up front and reading them back
// after Parse rather than threading a builder through each subcommand.
func Bind(fs *flag.FlagSet) *Config {
	d := Default()
	cfg := &Config{}

	fs.DurationVar(&cfg.Timeout, "session-timeout", d.Timeout, "end-of-session inactivity timeout (tau)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", d.ChunkSize, "target point count per published chunk (C)")
	fs.IntVar(&cfg.StoreMaxChunks, "store-max-chunks", d.StoreMaxChunks, "maximum chunks retained in the store (M)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", d.PollInterval, "subscribe follow-phase poll interval")
	fs.Float64Var(&cfg.VoxelEdge, "voxel-edge", d.VoxelEdge, "voxel edge length for spatial dedup (v)")
	fs.IntVar(&cfg.MaxMessageSize, "max-message-size", d.MaxMessageSize, "maximum gRPC message size in bytes, both directions")
	fs.IntVar(&cfg.WorkerPoolSize, "worker-pool-size", d.WorkerPoolSize, "maximum concurrent streaming RPCs")
	fs.StringVar(&cfg.ListenAddr, "listen", d.ListenAddr, "primary listen address")
	fs.StringVar(&cfg.ListenAddrAlt, "listen-alt", d.ListenAddrAlt, "secondary (equivalent) listen address")
	fs.BoolVar(&cfg.DisableAltPort, "disable-alt-listener", false, "do not open the secondary listener")
	fs.StringVar(&cfg.LogLevel, "log-level", d.LogLevel, "zerolog level: debug, info, warn, error")

	return cfg
}

// Validate rejects configurations that would break at runtime instead of
// failing fast at startup (e.g. a non-positive voxel edge, which
// internal/voxel.Filter would otherwise panic on at the first ingested
// point).
func (c Config) Validate() error {
	if c.VoxelEdge <= 0 {
		return fmt.Errorf("config: voxel-edge must be positive, got %v", c.VoxelEdge)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk-size must be positive, got %d", c.ChunkSize)
	}
	if c.StoreMaxChunks <= 0 {
		return fmt.Errorf("config: store-max-chunks must be positive, got %d", c.StoreMaxChunks)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("config: worker-pool-size must be positive, got %d", c.WorkerPoolSize)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("config: max-message-size must be positive, got %d", c.MaxMessageSize)
	}
	return nil
}

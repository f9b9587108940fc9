// Command slam-relay-server runs the SLAM streaming relay: it accepts a
// producer's point-cloud/pose stream, deduplicates and chunks it, and
// serves consumers a subscribe/repair interface over gRPC.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/slamstream/relay/internal/activity"
	"github.com/slamstream/relay/internal/config"
	"github.com/slamstream/relay/internal/consumer"
	"github.com/slamstream/relay/internal/ingest"
	"github.com/slamstream/relay/internal/rpc"
	"github.com/slamstream/relay/internal/session"
	"github.com/slamstream/relay/internal/store"
)

func main() {
	os.Exit(run(os.Args, os.Stderr))
}

func run(args []string, errOut *os.File) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cfg := config.Bind(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintln(errOut, "error:", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 2
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(errOut, "error: invalid log level:", err)
		return 2
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: errOut, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	st := store.New(cfg.StoreMaxChunks)
	var sessions session.Registry
	pipeline := ingest.New(st, &sessions, cfg.ChunkSize, cfg.VoxelEdge, log.With().Str("component", "ingest").Logger())
	cursors := consumer.NewCursors()
	monitor := activity.New(&sessions, cfg.Timeout, log.With().Str("component", "activity").Logger())

	monitor.RegisterCallback(func() error {
		if _, ok := pipeline.FlushPending(sessions.Get().SessionID, time.Now().UnixMilli()); ok {
			log.Debug().Msg("teardown: flushed pending points into a final chunk")
		}
		return nil
	})
	monitor.RegisterCallback(func() error {
		pipeline.Reset()
		return nil
	})
	monitor.RegisterCallback(func() error {
		st.Clear()
		return nil
	})
	monitor.RegisterCallback(func() error {
		cursors.Clear()
		return nil
	})
	monitor.RegisterCallback(func() error {
		sessions.Clear()
		return nil
	})

	server := rpc.NewServer(st, &sessions, pipeline, monitor, cursors, cfg.WorkerPoolSize, cfg.PollInterval, log.With().Str("component", "rpc").Logger())

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxMessageSize),
		grpc.MaxSendMsgSize(cfg.MaxMessageSize),
	)
	grpcServer.RegisterService(&rpc.ServiceDesc, server)

	listeners, err := openListeners(cfg)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	done := make(chan struct{})
	go monitor.Run(done)
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, len(listeners))
	for _, lis := range listeners {
		lis := lis
		log.Info().Str("addr", lis.Addr().String()).Msg("listening")
		go func() {
			errCh <- grpcServer.Serve(lis)
		}()
	}

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		grpcServer.GracefulStop()
		return 0
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("listener stopped")
			grpcServer.Stop()
			return 1
		}
		return 0
	}
}

func openListeners(cfg *config.Config) ([]net.Listener, error) {
	primary, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	listeners := []net.Listener{primary}

	if !cfg.DisableAltPort {
		alt, err := net.Listen("tcp", cfg.ListenAddrAlt)
		if err != nil {
			primary.Close()
			return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddrAlt, err)
		}
		listeners = append(listeners, alt)
	}

	return listeners, nil
}

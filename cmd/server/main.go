package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nowplaying/playerapi/internal/config"
	"github.com/nowplaying/playerapi/internal/logging"
	"github.com/nowplaying/playerapi/internal/metrics"
	"github.com/nowplaying/playerapi/internal/player"
	"github.com/nowplaying/playerapi/internal/sentry"
	"github.com/nowplaying/playerapi/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	if err := newRootCmd(config.Load()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playerapi",
		Short: "Serve the local player status over HTTP and Server-Sent Events",
		Long: `playerapi exposes the player status on a local HTTP port.

Status changes are read from stdin as one JSON object per line, for example
{"progress":42} or {"name":"Song","singer":"Singer"}. Clients poll /status and
/lyric or subscribe to /subscribe-player-status.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, cmd.InOrStdin())
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	flags.StringVar(&cfg.BindAddress, "bind", cfg.BindAddress, "address to bind")
	flags.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "idle timeout for non-streaming connections")
	flags.StringVar(&cfg.MetricsAddress, "metrics-address", cfg.MetricsAddress, "serve Prometheus metrics on this address (disabled when empty)")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, in io.Reader) error {
	if err := sentry.Init(cfg.SentryDSN, cfg.SentryEnvironment); err != nil {
		slog.Warn("failed to initialize sentry", slog.String("error", err.Error()))
	}
	defer sentry.Flush(2 * time.Second)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	state := player.NewState(player.Status{PlaybackRate: 1})
	srv := server.New(cfg, state, server.WithMetrics(metrics.New(reg)))

	st := srv.Start(cfg.Port, cfg.BindAddress)
	if !st.Running {
		return errors.New(st.Message)
	}
	defer srv.Stop()
	slog.Info("frontend should connect to", slog.String("url", st.Address))

	if cfg.MetricsAddress != "" {
		ms := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer ms.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go feed(ctx, state, in)

	<-ctx.Done()
	slog.Info("shutting down", slog.Any("status", srv.Stop()))
	return nil
}

// feed applies newline-delimited JSON status deltas from in until it is
// exhausted. Malformed lines are logged and skipped.
func feed(ctx context.Context, state *player.State, in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4<<20) // lyrics can be long
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := state.ApplyJSON(line); err != nil {
			slog.Warn("ignoring status update", slog.String("error", err.Error()))
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("failed to read status updates", slog.String("error", err.Error()))
	}
}

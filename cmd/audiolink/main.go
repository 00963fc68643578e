// Command audiolink streams PCM16 audio from stdin to a translation server
// over a resilient WebSocket connection and prints returned translations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/streamlation/audiolink/internal/config"
	"github.com/streamlation/audiolink/internal/health"
	"github.com/streamlation/audiolink/internal/observe"
	"github.com/streamlation/audiolink/pkg/bridge"
	"github.com/streamlation/audiolink/pkg/client"
	"github.com/streamlation/audiolink/pkg/pcm"
	"github.com/streamlation/audiolink/pkg/transport"
	"github.com/streamlation/audiolink/pkg/wire"
)

// stdinChunkBytes is how much PCM is read from stdin per bridge chunk:
// 100 ms at 16 kHz mono PCM16.
const stdinChunkBytes = 3200

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "audiolink.yaml", "path to the YAML configuration file")
	urlOverride := flag.String("url", "", "override the configured server URL")
	noStdin := flag.Bool("no-stdin", false, "do not read audio from stdin (connection diagnostics only)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "audiolink: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "audiolink: %v\n", err)
		}
		return 1
	}
	if *urlOverride != "" {
		cfg.Server.URL = *urlOverride
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := &slog.LevelVar{}
	logLevel.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("audiolink starting",
		"config", *configPath,
		"url", cfg.Server.URL,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Streaming client and bridge ───────────────────────────────────────────
	cl, err := client.New(cfg.Server.URL,
		client.WithQueueSize(cfg.Queue.MaxSize),
		client.WithTransportOptions(cfg.Connection.TransportOptions()...),
	)
	if err != nil {
		slog.Error("failed to create client", "err", err)
		return 1
	}
	defer cl.Close()

	cl.OnTranslation(func(tr wire.Translation) {
		fmt.Printf("[%s→%s] %s\n", tr.SourceLanguage, tr.TargetLanguage, tr.Text)
	})
	unsubscribe := cl.Subscribe(logConnectionEvents)
	defer unsubscribe()

	br := bridge.New(cl, bridgeOptions(cfg.Stream)...)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(d.NewLogLevel.Slog())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.TargetLanguageChanged && d.NewTargetLanguage != "" {
			if err := cl.SetTargetLanguage(context.Background(), d.NewTargetLanguage); err != nil {
				slog.Warn("failed to apply new target language", "language", d.NewTargetLanguage, "err", err)
			}
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Connect ───────────────────────────────────────────────────────────────
	if err := cl.Connect(ctx); err != nil {
		// Reconnection keeps running in the background; an initial failure
		// is not fatal.
		slog.Warn("initial connect failed, retrying in background", "err", err)
	}
	if lang := cfg.Stream.TargetLanguage; lang != "" {
		if err := cl.SetTargetLanguage(ctx, lang); err != nil {
			slog.Warn("failed to set target language", "language", lang, "err", err)
		}
	}
	br.SetEnabled(true)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	var server *http.Server
	if cfg.Server.MetricsAddr != "" {
		server = diagnosticsServer(cfg.Server.MetricsAddr, cl)
		g.Go(func() error {
			slog.Info("diagnostics server listening", "addr", cfg.Server.MetricsAddr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("diagnostics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(sctx)
		})
	}

	if !*noStdin {
		g.Go(func() error {
			defer br.Flush()
			return pumpStdin(gctx, br)
		})
	}

	slog.Info("streaming — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	br.SetEnabled(false)
	cl.Disconnect(transport.CloseNormal, "client shutdown")
	slog.Info("goodbye")
	return 0
}

// pumpStdin reads raw little-endian PCM16 from stdin and feeds it to the
// bridge in fixed-size chunks until EOF or cancellation.
func pumpStdin(ctx context.Context, br *bridge.Bridge) error {
	buf := make([]byte, stdinChunkBytes)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(os.Stdin, buf)
		if n > 0 {
			// An odd trailing byte cannot form a sample and is dropped.
			br.ProcessAudioChunk(pcm.PCM16ToFloat(buf[:n]))
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			slog.Info("stdin closed, audio input finished")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}
}

// diagnosticsServer serves Prometheus metrics and the health endpoints.
func diagnosticsServer(addr string, cl *client.Client) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	handler := health.New(
		health.Checker{Name: "connection", Check: func(ctx context.Context) error {
			h := cl.Health()
			if !h.Connected {
				return errors.New(h.Summary)
			}
			return nil
		}},
	).WithStatus(func() any { return healthBody(cl.Health()) })
	handler.Register(mux)

	instrumented := observe.Middleware(observe.DefaultMetrics())(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           instrumented,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// healthBody shapes a health snapshot for the /statusz JSON response.
func healthBody(h client.Health) map[string]any {
	return map[string]any{
		"connected":          h.Connected,
		"state":              h.State.String(),
		"transport_ready":    h.TransportReady,
		"queue_length":       h.QueueLength,
		"circuit_open":       h.CircuitOpen,
		"reconnect_attempts": h.ReconnectAttempts,
		"heartbeat_rtt_ms":   h.LastHeartbeatRTT.Milliseconds(),
		"inconsistent":       h.Inconsistent,
		"summary":            h.Summary,
	}
}

// logConnectionEvents mirrors lifecycle events into the log for operators.
func logConnectionEvents(ev transport.Event) {
	switch e := ev.(type) {
	case transport.OpenEvent:
		slog.Info("connection open")
	case transport.CloseEvent:
		slog.Info("connection closed", "code", e.Code, "reason", e.Reason)
	case transport.ErrorEvent:
		slog.Warn("connection error", "err", e.Err)
	case transport.ReconnectingEvent:
		slog.Info("reconnecting", "attempt", e.Attempt, "delay", e.Delay)
	case transport.ReconnectFailedEvent:
		slog.Error("reconnect attempts exhausted — call connect manually or restart", "attempts", e.Attempts)
	case transport.CircuitOpenEvent:
		slog.Warn("circuit breaker open", "cooldown", e.Cooldown)
	case transport.CircuitCloseEvent:
		slog.Info("circuit breaker closed")
	}
}

func bridgeOptions(s config.StreamConfig) []bridge.Option {
	var opts []bridge.Option
	if s.SampleRate > 0 {
		opts = append(opts, bridge.WithSampleRate(s.SampleRate))
	}
	if s.BinaryMode {
		opts = append(opts, bridge.WithBinaryMode(true))
	}
	if s.MaxBufferBytes > 0 {
		opts = append(opts, bridge.WithMaxBufferBytes(s.MaxBufferBytes))
	}
	if s.FlushInterval > 0 {
		opts = append(opts, bridge.WithFlushInterval(s.FlushInterval.Std()))
	}
	if s.ConnectWait > 0 {
		opts = append(opts, bridge.WithConnectWait(s.ConnectWait.Std()))
	}
	return opts
}

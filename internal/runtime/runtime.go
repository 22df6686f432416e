package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shidfar/sirius/internal/bus"
	"github.com/Shidfar/sirius/internal/config"
	"github.com/Shidfar/sirius/internal/engine"
	"github.com/Shidfar/sirius/internal/eventstore"
	"github.com/Shidfar/sirius/internal/gateway"
	"github.com/Shidfar/sirius/internal/request"
	"github.com/Shidfar/sirius/internal/scheduler"
)

// Runtime assembles the service: telemetry, event store, optional bus,
// synthesis engine, scheduler, and the WebSocket gateway, all behind one
// HTTP server.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the service until ctx is cancelled, then unwinds everything in
// reverse start order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}()
	if err := store.Prune(ctx); err != nil {
		r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
	}

	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		busClient, err = bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer busClient.Close()
	}

	synth, registry, err := engine.New(r.cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to initialize synthesis engine: %w", err)
	}
	r.logger.Info("synthesis engine ready",
		slog.String("mode", r.cfg.Engine.Mode),
		slog.Int("voices", len(registry.Names())),
		slog.Int("sample_rate", r.cfg.Engine.SampleRate))

	sched := scheduler.New(r.cfg.Scheduler, synth, r.logger)
	defer sched.Close()

	decoder := request.NewDecoder(
		registry,
		r.cfg.Engine.Languages,
		request.Limits{
			MaxTextLen: r.cfg.Engine.MaxTextLen,
			MinSpeed:   r.cfg.Engine.MinSpeed,
			MaxSpeed:   r.cfg.Engine.MaxSpeed,
		},
		request.Defaults{
			Voice: r.cfg.Engine.DefaultVoice,
			Lang:  r.cfg.Engine.DefaultLang,
			Speed: r.cfg.Engine.DefaultSpeed,
		},
	)

	gw := gateway.New(ctx, r.cfg.Server, decoder, sched, store, busClient, r.logger)
	defer gw.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.Handle(r.cfg.Server.WSPath, gw)

	addr := fmt.Sprintf("%s:%d", r.cfg.Server.Bind, r.cfg.Server.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("ws_path", r.cfg.Server.WSPath))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Shidfar/sirius/internal/bus"
	"github.com/Shidfar/sirius/internal/config"
	"github.com/Shidfar/sirius/internal/eventstore"
	"github.com/Shidfar/sirius/internal/request"
	"github.com/Shidfar/sirius/internal/scheduler"
)

// Gateway upgrades HTTP requests into synthesis sessions. One session per
// connection; sessions share the scheduler's worker pool.
type Gateway struct {
	cfg      config.ServerConfig
	decoder  *request.Decoder
	sched    *scheduler.Scheduler
	store    *eventstore.Store
	bus      *bus.Client
	log      *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(parent context.Context, cfg config.ServerConfig, dec *request.Decoder, sched *scheduler.Scheduler, store *eventstore.Store, busClient *bus.Client, log *slog.Logger) *Gateway {
	ctx, cancel := context.WithCancel(parent)
	return &Gateway{
		cfg:     cfg,
		decoder: dec,
		sched:   sched,
		store:   store,
		bus:     busClient,
		log:     log.With(slog.String("component", "gateway")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// ServeHTTP runs one session for the lifetime of the connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}
	g.wg.Add(1)
	defer g.wg.Done()
	newSession(g, conn, r.RemoteAddr).run()
}

// Close cancels every active session and waits for them to unwind.
func (g *Gateway) Close() {
	g.cancel()
	g.wg.Wait()
}

// Package realtime is the websocket edge of the broadcast layer. Each
// connection becomes a session that subscribes to chats on request and
// writes every event the registries hand it to the wire.
package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/authz"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/presence"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultSendBuffer     = 64
	DefaultWriteWait      = 10 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultMaxMessageSize = 4096

	presenceTimeout = 2 * time.Second
)

type Options struct {
	// SendBuffer is how many frames may queue for a slow client before
	// deliveries start to wait and eventually time out.
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64

	// CheckOrigin defaults to gorilla's same-origin check.
	CheckOrigin func(*http.Request) bool

	Registerer prometheus.Registerer
}

func (o *Options) setDefaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
}

// Gateway upgrades authenticated requests and runs one session per
// connection. It holds no per-connection state itself; the registries do.
type Gateway struct {
	resolver *auth.Resolver
	guard    *authz.Guard
	seq      *broadcast.Sequencer
	chats    *broadcast.Registry[int64]
	inboxes  *broadcast.Registry[uuid.UUID]
	presence presence.Tracker
	upgrader websocket.Upgrader
	opts     Options
	sessions prometheus.Gauge
	logger   *zap.Logger
}

// NewGateway wires a gateway. seq must be the sequencer the services
// publish under: a subscribe holds it across the membership check, so it
// cannot interleave with a removal that revokes the user's connections.
func NewGateway(
	resolver *auth.Resolver,
	guard *authz.Guard,
	seq *broadcast.Sequencer,
	chats *broadcast.Registry[int64],
	inboxes *broadcast.Registry[uuid.UUID],
	tracker presence.Tracker,
	opts Options,
	logger *zap.Logger,
) *Gateway {
	opts.setDefaults()
	if tracker == nil {
		tracker = presence.Nop{}
	}

	g := &Gateway{
		resolver: resolver,
		guard:    guard,
		seq:      seq,
		chats:    chats,
		inboxes:  inboxes,
		presence: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		opts:   opts,
		logger: logger,
	}
	if opts.Registerer != nil {
		g.sessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echochat",
			Subsystem: "realtime",
			Name:      "sessions",
			Help:      "Open websocket sessions.",
		})
		opts.Registerer.MustRegister(g.sessions)
	}
	return g
}

// ServeHTTP handles GET /v1/ws. The identity is resolved before the upgrade
// so an anonymous client gets a plain 401 instead of a socket.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential, err := auth.CredentialFromRequest(r)
	if err == nil {
		var id auth.Identity
		if id, err = g.resolver.Resolve(credential); err == nil {
			g.serve(w, r, id)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid or missing token"}`))
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	// The request context ends with the handler; the session outlives any
	// single frame but keeps the request's trace values.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	s := newSession(g, conn, id)
	g.trackSession(1)
	defer g.trackSession(-1)

	s.logger.Info("session opened")
	g.inboxes.Subscribe(id.UserID, s)

	go s.writePump(ctx)
	s.readLoop(ctx)
	s.teardown(ctx)
	s.logger.Info("session closed")
}

func (g *Gateway) trackSession(delta float64) {
	if g.sessions != nil {
		g.sessions.Add(delta)
	}
}

package chatserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

// Server bundles the REST handlers, the channel hub, and metrics for the
// messaging backend.
type Server struct {
	store   Store
	hub     *Hub
	metrics *Metrics
	backend string

	upgrader websocket.Upgrader
}

// New creates a Server over the given store. backend names the storage
// implementation for logs and health output ("postgres" or "bolt").
func New(store Store, backend string) *Server {
	return &Server{
		store:   store,
		hub:     NewHub(),
		metrics: &Metrics{},
		backend: backend,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Hub exposes the session registry, useful for tests and diagnostics.
func (s *Server) Hub() *Hub { return s.hub }

// MetricsSnapshot copies the current counter values.
func (s *Server) MetricsSnapshot() map[string]uint64 {
	return map[string]uint64{
		"requests":          s.metrics.Requests.Load(),
		"login_attempts":    s.metrics.LoginAttempts.Load(),
		"register_attempts": s.metrics.RegisterAttempts.Load(),
		"health_checks":     s.metrics.HealthChecks.Load(),
		"channel_sessions":  s.metrics.ChannelSessions.Load(),
		"channel_rejects":   s.metrics.ChannelRejects.Load(),
		"messages_routed":   s.metrics.MessagesRouted.Load(),
		"read_receipts":     s.metrics.ReadReceipts.Load(),
	}
}

// Router wires up chi routes, middleware, and handlers ready for
// http.ListenAndServe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(s.loggingMiddleware())
		r.Post("/auth/register", s.registerHandler())
		r.Post("/auth/login", s.loginHandler())
		r.Get("/healthz", s.healthHandler())
		r.With(s.authenticated()).Get("/chats/history/{peerID}", s.historyHandler())
		r.With(s.authenticated()).Get("/profiles/mini-profile/{userID}", s.miniProfileHandler())
	})

	// The channel route authenticates inside the handler and must not be
	// wrapped by the logging recorder, which would break the websocket
	// hijack.
	r.Get("/channel", s.channelHandler())

	return r
}

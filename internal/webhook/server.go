// Package webhook receives LINE webhook deliveries, authenticates them and
// feeds their events through the conversation.
package webhook

import (
	"context"
	"net/http"
	"time"

	"kakei/internal/cache"
	"kakei/internal/flow"
	applog "kakei/internal/log"
	"kakei/internal/middleware/security"
	"kakei/internal/middleware/trace"
)

const (
	maxBodyBytes  = 1 << 20
	eventTimeout  = 25 * time.Second
	readyTimeout  = 2 * time.Second
	seenEventsMax = 10_000
)

// EventHandler turns one event into the reply for the user.
type EventHandler interface {
	Handle(ctx context.Context, ev flow.Event) (flow.Reply, error)
}

// Replier delivers replies back to the chat.
type Replier interface {
	Reply(ctx context.Context, replyToken string, reply flow.Reply) error
	ShowLoading(ctx context.Context, userID string) error
}

// Pinger reports whether the ledger is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	ChannelSecret  string
	AllowedUserIDs []string
	Concurrency    int
	DedupeTTL      time.Duration
}

type Server struct {
	http.Server
	secret      string
	allowed     map[string]struct{}
	concurrency int
	handler     EventHandler
	replier     Replier
	ready       Pinger
	seen        *cache.LRUCache[struct{}]
	logger      *applog.Logger
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, cfg Config, handler EventHandler, replier Replier, ready Pinger, logger *applog.Logger) *Server {
	allowed := make(map[string]struct{}, len(cfg.AllowedUserIDs))
	for _, id := range cfg.AllowedUserIDs {
		allowed[id] = struct{}{}
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	s := &Server{
		secret:      cfg.ChannelSecret,
		allowed:     allowed,
		concurrency: concurrency,
		handler:     handler,
		replier:     replier,
		ready:       ready,
		seen:        cache.NewLRUCache[struct{}](seenEventsMax, ttl),
		logger:      logger.WithComponent(applog.ComponentWebhook),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	var h http.Handler = mux
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = trace.Middleware(h)
	h = applog.Middleware(s.logger)(h)

	s.Server = http.Server{
		Addr:           addr,
		Handler:        h,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   eventTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

// SeenEvents exposes the redelivery cache so its expired entries can be
// purged.
func (s *Server) SeenEvents() cache.Cleaner {
	return s.seen
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if s.ready != nil {
		if err := s.ready.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

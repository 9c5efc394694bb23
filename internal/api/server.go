// Package api implements the HTTP surface of the rentdesk service: the
// authentication pipeline, resource CRUD handlers, and event streaming.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"rentdesk/internal/auth"
	"rentdesk/internal/authz"
	"rentdesk/internal/config"
	"rentdesk/internal/events"
	"rentdesk/internal/kv"
	"rentdesk/internal/session"
	"rentdesk/internal/store"
)

type Server struct {
	Store    store.Store
	Auth     *auth.Verifier
	Resolver *session.Resolver
	Guard    *authz.Guard
	Pub      *events.Publisher
	Broker   EventBroker
	KV       *kv.Client

	loginLimit *rate.Limiter
	cfg        config.Config
	pingDB     func(context.Context) error
}

// NewServer wires the full dependency graph from configuration. With no
// DATABASE_URL the in-memory store is used; with no REDIS_URL the broker
// is in-process and lockout counters are disabled.
func NewServer(cfg config.Config) (*Server, error) {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	var s store.Store
	var pingDB func(context.Context) error
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sp.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		s = sp
		pingDB = sp.Ping
	}
	s = store.WithReadRetries(s, cfg.ReadRetryAttempts, cfg.ReadRetryBackoff)

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	kvc, err := kv.New(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Store:      s,
		Auth:       verifier,
		Resolver:   session.NewResolver(s),
		Guard:      authz.NewGuard(s, cfg.GuardTimeout),
		Pub:        events.NewPublisher(s),
		Broker:     broker,
		KV:         kvc,
		loginLimit: rate.NewLimiter(rate.Limit(float64(cfg.LoginRatePerMin)/60.0), cfg.LoginBurst),
		cfg:        cfg,
		pingDB:     pingDB,
	}, nil
}

// writeCtx bounds a store write so a hung backend fails the request
// instead of parking it. Reads are bounded by the guard timeout and the
// retry wrapper; writes get their own deadline here.
func (s *Server) writeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.WriteTimeout)
}

// NewDeliveryWorker creates the background webhook delivery worker.
func (s *Server) NewDeliveryWorker() *events.Worker {
	return events.NewWorker(s.Store, s.cfg.WebhookMaxAttempts)
}

package main

import (
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rentdesk/internal/api"
	"rentdesk/internal/config"
	"rentdesk/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Public routes. Everything else goes through the token pipeline;
	// exemptions are only what is registered here.
	mux.HandleFunc("/api/auth/register", srv.RegisterHandler)
	mux.HandleFunc("/api/auth/login", srv.LoginHandler)
	mux.HandleFunc("/api/auth/refresh", srv.RefreshHandler)
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/api/health", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/openapi.yaml", srv.OpenAPIHandler)
	mux.HandleFunc("/docs", srv.DocsHandler)

	// Authenticated routes
	mux.HandleFunc("/api/auth/profile", srv.Protected(srv.ProfileHandler))
	mux.HandleFunc("/api/profile", srv.Protected(srv.ProfileHandler))
	mux.HandleFunc("/api/properties", srv.PropertiesHandler)
	mux.HandleFunc("/api/properties/", srv.PropertyByIDHandler)
	mux.HandleFunc("/api/finances", srv.FinancesHandler)
	mux.HandleFunc("/api/finances/", srv.FinanceByIDHandler)
	mux.HandleFunc("/api/loans", srv.LoansHandler)
	mux.HandleFunc("/api/loans/", srv.LoanByIDHandler)
	mux.HandleFunc("/api/dashboard", srv.Protected(srv.DashboardHandler))
	mux.HandleFunc("/api/subscriptions", srv.Protected(srv.SubscriptionsHandler))
	mux.HandleFunc("/api/subscriptions/", srv.Protected(srv.SubscriptionByIDHandler))
	mux.HandleFunc("/api/events/ws", srv.EventsWSHandler)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LogMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	worker := srv.NewDeliveryWorker()
	worker.Start()

	log.Printf("API listening on %s", cfg.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

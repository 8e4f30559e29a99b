package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shehryarbajwa/invoice-scraper/internal/events"
	"github.com/shehryarbajwa/invoice-scraper/internal/proxy"
	"github.com/shehryarbajwa/invoice-scraper/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(profiles *ProfileHandler, proxyServer *proxy.Server, hub *events.Hub, rateLimiter *ratelimit.Limiter) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Session endpoints
	r.HandleFunc("/session/status", h.SessionStatus).Methods("GET")
	r.Handle("/session/check", exclusive(h.busy, h.CheckSession)).Methods("POST")
	r.HandleFunc("/session/login-complete", h.LoginComplete).Methods("POST")
	r.HandleFunc("/session/events", hub.HandleWS).Methods("GET")

	// Run control (never blocked by a running operation)
	r.HandleFunc("/cancel", h.Cancel).Methods("POST")
	r.HandleFunc("/reset", h.Reset).Methods("POST")

	// Browser endpoints
	r.Handle("/browser/close", exclusive(h.busy, h.CloseBrowser)).Methods("POST")
	r.Handle("/browser/idle", exclusive(h.busy, h.ShowIdle)).Methods("POST")
	r.HandleFunc("/browser/devtools", proxyServer.HandleDevTools).Methods("GET")

	// Profile snapshots
	r.HandleFunc("/browser/profile/snapshots", profiles.ListSnapshots).Methods("GET")
	r.Handle("/browser/profile/snapshots", exclusive(h.busy, profiles.CreateSnapshot)).Methods("POST")
	r.Handle("/browser/profile/snapshots/{id}/restore", exclusive(h.busy, profiles.RestoreSnapshot)).Methods("POST")
	r.HandleFunc("/browser/profile/snapshots/{id}", profiles.DeleteSnapshot).Methods("DELETE")

	// Scrape endpoints (rate limited)
	scrape := r.PathPrefix("").Subrouter()
	scrape.Use(RateLimitMiddleware(rateLimiter, h.cfg.RateLimitPerHour))
	scrape.Handle("/scrape-invoice", exclusive(h.busy, h.ScrapeInvoice)).Methods("POST")
	scrape.Handle("/scrape-batch", exclusive(h.busy, h.ScrapeBatch)).Methods("POST")

	// Preflight for every path
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	r.Use(corsMiddleware)
	r.Use(RequestLogger(h.logger))

	return r
}

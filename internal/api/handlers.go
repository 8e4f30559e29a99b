package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/invoice-scraper/internal/config"
	"github.com/shehryarbajwa/invoice-scraper/internal/scraper"
	"github.com/shehryarbajwa/invoice-scraper/internal/session"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// Version is reported by GET /health
const Version = "2.0.0"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	cfg      *config.Config
	sessions *session.Manager
	auth     *session.Authenticator
	state    *session.State
	scraper  *scraper.Scraper
	logger   *zap.Logger

	// busy admits a single browser-affecting operation at a time
	busy *semaphore.Weighted
}

// NewHandler creates a new HTTP handler
func NewHandler(cfg *config.Config, sessions *session.Manager, auth *session.Authenticator, state *session.State, scr *scraper.Scraper, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		auth:     auth,
		state:    state,
		scraper:  scr,
		logger:   logger.With(zap.String("component", "api")),
		busy:     semaphore.NewWeighted(1),
	}
}

func (h *Handler) log(r *http.Request) *zap.Logger {
	return h.logger.With(zap.String("request_id", RequestID(r.Context())))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeOK(w http.ResponseWriter, status, message string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "message": message})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dir, err := filepath.Abs(h.cfg.DownloadDir)
	if err != nil {
		dir = h.cfg.DownloadDir
	}

	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:         "healthy",
		Version:        Version,
		HeadlessMode:   h.cfg.Headless,
		DownloadDir:    dir,
		SessionStatus:  h.state.Status(),
		BrowserRunning: h.sessions.Running(),
		Engine:         h.sessions.EngineName(),
	})
}

// ScrapeInvoice handles POST /scrape-invoice
func (h *Handler) ScrapeInvoice(w http.ResponseWriter, r *http.Request) {
	var req models.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if !models.ValidOrderID(req.OrderID) {
		writeError(w, http.StatusBadRequest, models.MsgInvalidOrderID)
		return
	}

	log := h.log(r).With(zap.String("order_id", req.OrderID), zap.String("order_name", req.OrderName))
	log.Info("received scrape request")

	out := h.scraper.WithRetry(r.Context(), req)

	status := http.StatusOK
	switch {
	case out.Success:
		log.Info("invoice scraped", zap.String("invoice_number", out.InvoiceNumber))
	case out.NeedsLogin:
		log.Warn("login required")
		status = http.StatusUnauthorized
	default:
		log.Error("failed to scrape invoice", zap.String("error", out.Error), zap.String("kind", string(out.ErrorKind)))
	}

	writeJSON(w, status, out)
}

// ScrapeBatch handles POST /scrape-batch
func (h *Handler) ScrapeBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	for _, o := range req.Orders {
		if o.OrderID == "" {
			writeError(w, http.StatusBadRequest, "order_id is required for every order")
			return
		}
		if !models.ValidOrderID(o.OrderID) {
			writeError(w, http.StatusBadRequest, models.MsgInvalidOrderID)
			return
		}
	}

	h.log(r).Info("received batch scrape request", zap.Int("orders", len(req.Orders)))

	writeJSON(w, http.StatusOK, h.scraper.RunBatch(r.Context(), req.Orders))
}

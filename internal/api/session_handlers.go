package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/session"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// SessionStatus handles GET /session/status
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	status := h.state.Status()
	writeJSON(w, http.StatusOK, models.SessionStatusResponse{
		Status:    status,
		StoreSlug: h.cfg.StoreSlug,
		Message:   status.Message(),
	})
}

// CheckSession handles POST /session/check. It blocks while a manual login is
// awaited and leaves the browser on the idle page once logged in.
func (h *Handler) CheckSession(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.EnsureAuthenticated(r.Context()); err != nil {
		h.log(r).Warn("session check failed", zap.Error(err))
		writeError(w, http.StatusUnauthorized, session.FailureMessage(err))
		return
	}

	h.sessions.ShowIdleStatusPage()

	writeJSON(w, http.StatusOK, models.SessionStatusResponse{
		Status:    models.StatusLoggedIn,
		StoreSlug: h.cfg.StoreSlug,
		Message:   "Successfully logged into Shopify admin",
	})
}

// LoginComplete handles POST /session/login-complete
func (h *Handler) LoginComplete(w http.ResponseWriter, r *http.Request) {
	if !h.auth.SignalLoginComplete() {
		h.log(r).Info("login completion signaled with no login in progress")
	}
	writeOK(w, "ok", "Login completion signaled")
}

// Cancel handles POST /cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.state.Cancel()
	h.log(r).Info("cancellation requested")
	writeOK(w, "cancelled", "Cancellation signal sent")
}

// Reset handles POST /reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.state.ResetCancel()
	h.log(r).Info("cancel flag reset")
	writeOK(w, "ok", "Ready for new run")
}

// CloseBrowser handles POST /browser/close. The browser is relaunched on demand.
func (h *Handler) CloseBrowser(w http.ResponseWriter, r *http.Request) {
	h.sessions.CloseSession()
	h.state.SetStatus(models.StatusUnknown)
	h.log(r).Info("browser closed via API")
	writeOK(w, "ok", "Browser closed")
}

// ShowIdle handles POST /browser/idle
func (h *Handler) ShowIdle(w http.ResponseWriter, r *http.Request) {
	h.sessions.ShowIdleStatusPage()
	h.log(r).Info("browser set to idle status page")
	writeOK(w, "ok", "Browser showing idle status")
}

package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/profile"
)

// ProfileHandler holds dependencies for profile snapshot handlers
type ProfileHandler struct {
	snapshots *profile.Manager
	logger    *zap.Logger
}

// NewProfileHandler creates a new profile snapshot handler
func NewProfileHandler(snapshots *profile.Manager, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		snapshots: snapshots,
		logger:    logger.With(zap.String("component", "api")),
	}
}

func (h *ProfileHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, profile.ErrBrowserRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("profile snapshot operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ListSnapshots handles GET /browser/profile/snapshots
func (h *ProfileHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.snapshots.List()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// CreateSnapshot handles POST /browser/profile/snapshots
func (h *ProfileHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Create()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// RestoreSnapshot handles POST /browser/profile/snapshots/{id}/restore
func (h *ProfileHandler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.snapshots.Restore(id); err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, "ok", "Profile restored from snapshot "+id)
}

// DeleteSnapshot handles DELETE /browser/profile/snapshots/{id}
func (h *ProfileHandler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.snapshots.Delete(id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

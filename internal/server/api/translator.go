package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/go-chi/chi/v5"
)

// TranslatorControl switches live translation on and off.
type TranslatorControl interface {
	SetEnabled(enabled bool) error
	IsEnabled() bool
	LastDecision() (recognizer.Decision, bool)
}

// TranslatorHandler exposes a TranslatorControl.
type TranslatorHandler struct {
	control TranslatorControl
	logger  *slog.Logger
}

// NewTranslatorHandler creates a new TranslatorHandler.
func NewTranslatorHandler(control TranslatorControl, logger *slog.Logger) *TranslatorHandler {
	return &TranslatorHandler{control: control, logger: logging.WithComponent(logger, "api")}
}

// Routes mounts the handler on r.
func (h *TranslatorHandler) Routes(r chi.Router) {
	r.Get("/translator", h.status)
	r.Post("/translator", h.toggle)
}

type translatorRequest struct {
	Enabled *bool `json:"enabled"`
}

type translatorResponse struct {
	Enabled bool                 `json:"enabled"`
	Last    *recognizer.Decision `json:"last,omitempty"`
}

func (h *TranslatorHandler) status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.snapshot())
}

func (h *TranslatorHandler) toggle(w http.ResponseWriter, r *http.Request) {
	var req translatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		WriteError(w, http.StatusBadRequest, `body must be {"enabled": bool}`, CodeBadRequest)
		return
	}

	if err := h.control.SetEnabled(*req.Enabled); err != nil {
		h.logger.Warn("translator toggle failed", "enabled", *req.Enabled, "error", err)
		WriteError(w, http.StatusConflict, err.Error(), CodeUnavailable)
		return
	}
	WriteJSON(w, http.StatusOK, h.snapshot())
}

func (h *TranslatorHandler) snapshot() translatorResponse {
	resp := translatorResponse{Enabled: h.control.IsEnabled()}
	if d, ok := h.control.LastDecision(); ok {
		resp.Last = &d
	}
	return resp
}

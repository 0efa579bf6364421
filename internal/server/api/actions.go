package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/go-chi/chi/v5"
)

// maxUploadBytes bounds a repeat upload. A frame is roughly 60 KB of JSON.
const maxUploadBytes = 64 << 20

// ActionHandler serves the corpus: actions, their repeats and length bounds.
type ActionHandler struct {
	repo   corpus.Repository
	logger *slog.Logger
}

// NewActionHandler creates a new ActionHandler over repo.
func NewActionHandler(repo corpus.Repository, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{repo: repo, logger: logging.WithComponent(logger, "api")}
}

// Routes mounts the handler on r.
func (h *ActionHandler) Routes(r chi.Router) {
	r.Get("/actions", h.list)
	r.Get("/actions/{name}", h.get)
	r.Post("/actions/{name}/repeats", h.createRepeat)
	r.Get("/actions/{name}/repeats/{repeat}", h.getRepeat)
	r.Get("/corpus/bounds", h.bounds)
}

type createRepeatRequest struct {
	Frames json.RawMessage `json:"frames"`
}

type createRepeatResponse struct {
	Action   string `json:"action"`
	Repeat   int    `json:"repeat"`
	Location string `json:"location"`
}

func (h *ActionHandler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := corpus.Summaries(r.Context(), h.repo)
	if err != nil {
		h.writeCorpusError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summaries)
}

func (h *ActionHandler) get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := corpus.ValidateName(name); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
		return
	}

	summary, err := corpus.Summarize(r.Context(), h.repo, name)
	if err != nil {
		h.writeCorpusError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

func (h *ActionHandler) createRepeat(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req createRepeatRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
		return
	}
	var frames []landmark.FrameRecord
	if len(req.Frames) > 0 {
		var shapeErr *landmark.ShapeError
		frames, err = landmark.DecodeFrames(req.Frames)
		switch {
		case errors.As(err, &shapeErr):
			h.writeCorpusError(w, err)
			return
		case err != nil:
			WriteError(w, http.StatusBadRequest, "invalid frames", CodeBadRequest)
			return
		}
	}

	key, err := h.repo.Save(r.Context(), name, frames)
	if err != nil {
		h.writeCorpusError(w, err)
		return
	}

	h.logger.Info("repeat uploaded", "action", key.Action, "repeat", key.Repeat, "frames", len(frames))
	WriteJSON(w, http.StatusCreated, createRepeatResponse{
		Action:   key.Action,
		Repeat:   key.Repeat,
		Location: key.Location,
	})
}

func (h *ActionHandler) getRepeat(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := corpus.ValidateName(name); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
		return
	}
	repeat, err := strconv.Atoi(chi.URLParam(r, "repeat"))
	if err != nil || repeat < 0 {
		WriteError(w, http.StatusBadRequest, "repeat must be a non-negative integer", CodeBadRequest)
		return
	}

	rep, err := h.repo.Load(r.Context(), name, repeat)
	if err != nil {
		h.writeCorpusError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}

func (h *ActionHandler) bounds(w http.ResponseWriter, r *http.Request) {
	b, err := corpus.LengthBounds(r.Context(), h.repo)
	if err != nil {
		h.writeCorpusError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, b)
}

// writeCorpusError maps the corpus error taxonomy onto HTTP statuses.
func (h *ActionHandler) writeCorpusError(w http.ResponseWriter, err error) {
	var shapeErr *landmark.ShapeError
	switch {
	case errors.Is(err, corpus.ErrInvalidName), errors.Is(err, corpus.ErrEmptySequence):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
	case errors.Is(err, corpus.ErrNotFound), errors.Is(err, sequence.ErrNoSequences):
		WriteError(w, http.StatusNotFound, err.Error(), CodeNotFound)
	case errors.Is(err, corpus.ErrRepeatIndexRace):
		WriteError(w, http.StatusConflict, err.Error(), CodeConflict)
	case errors.Is(err, corpus.ErrSchemaVersion):
		WriteError(w, http.StatusConflict, err.Error(), CodeSchemaMismatch)
	case errors.As(err, &shapeErr):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), CodeInvalidFrames)
	default:
		h.logger.Error("corpus request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", CodeInternal)
	}
}

// Package handlers contains the HTTP handlers of the FloodFactor API.
//
// Routes (mounted under /v1 by the entry point):
//   - POST /floods                          submit a flood run
//   - GET  /floods                          list runs, newest first
//   - GET  /floods/{runID}                  fetch one run
//   - GET  /floods/{runID}/artifacts/{name} download a run artifact
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"floodfactor/internal/core"
	"floodfactor/internal/types"
	"floodfactor/internal/workspace"
)

// FloodServiceInterface is the subset of pipeline.Service the handler needs.
type FloodServiceInterface interface {
	Submit(ctx context.Context, req types.FloodRequest) (*types.FloodRun, error)
	Get(ctx context.Context, id string) (*types.FloodRun, error)
	List(ctx context.Context, limit int, cursor string) ([]*types.FloodRun, types.PageInfo, error)
	OpenArtifact(ctx context.Context, runID, name string) (io.ReadCloser, error)
}

// FloodHandler maps HTTP requests to the flood run service.
type FloodHandler struct {
	service   FloodServiceInterface
	validator *core.Validator
	logger    *slog.Logger
}

func NewFloodHandler(svc FloodServiceInterface, val *core.Validator, logger *slog.Logger) *FloodHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FloodHandler{
		service:   svc,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the flood endpoints onto r.
func (h *FloodHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{runID}", h.Get)
	r.Get("/{runID}/artifacts/{name}", h.GetArtifact)
}

// Create handles POST /v1/floods.
//
// Synchronous runs answer 201 with the finished run. Async runs answer 202
// with the queued run. Either way Location points at the run resource. A
// synchronous run that fails answers with the run's error envelope and still
// sets Location so the recorded failure can be fetched.
func (h *FloodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.FloodRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	result := h.validator.ValidateStructWithWarnings(req)
	if !result.IsValid() {
		core.Error(w, r, h.validator.ValidateStruct(req))
		return
	}

	run, err := h.service.Submit(r.Context(), req)
	if run != nil {
		w.Header().Set("Location", runLocation(run.ID))
	}
	if err != nil {
		if run != nil {
			h.logger.WarnContext(r.Context(), "flood run failed",
				"run_id", run.ID,
				"code", types.CodeOf(err),
			)
		}
		core.Error(w, r, err)
		return
	}

	status := http.StatusCreated
	if run.Status == types.RunStatusQueued {
		status = http.StatusAccepted
	}

	resp := core.APIResponse{Data: run}
	if len(result.Warnings) > 0 {
		resp.Meta = &core.ResponseMeta{Warnings: result.Warnings}
	}
	core.JSON(w, r, status, resp)
}

// List handles GET /v1/floods?limit=&cursor=.
func (h *FloodHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidRequest,
				"limit must be a positive integer",
				nil,
			))
			return
		}
		limit = parsed
	}

	runs, page, err := h.service.List(r.Context(), limit, q.Get("cursor"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if runs == nil {
		runs = []*types.FloodRun{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: runs,
		Meta: &core.ResponseMeta{Pagination: &page},
	})
}

// Get handles GET /v1/floods/{runID}.
func (h *FloodHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: run})
}

// GetArtifact handles GET /v1/floods/{runID}/artifacts/{name} and streams
// the stored file.
func (h *FloodHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	name := chi.URLParam(r, "name")

	rc, err := h.service.OpenArtifact(r.Context(), runID, name)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", workspace.ContentType(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil && !errors.Is(err, context.Canceled) {
		// Headers are gone; the client sees a truncated body.
		h.logger.ErrorContext(r.Context(), "artifact stream interrupted",
			"run_id", runID,
			"artifact", name,
			"error", err,
		)
	}
}

func runLocation(id string) string {
	return "/v1/floods/" + id
}

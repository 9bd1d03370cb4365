package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	mw "github.com/kiranshivaraju/trialscope/internal/api/middleware"
	"github.com/kiranshivaraju/trialscope/internal/api/response"
	"github.com/kiranshivaraju/trialscope/internal/history"
	"github.com/kiranshivaraju/trialscope/internal/lifecycle"
	"github.com/kiranshivaraju/trialscope/internal/progress"
	"github.com/kiranshivaraju/trialscope/internal/report"
	"github.com/kiranshivaraju/trialscope/internal/research"
	"github.com/kiranshivaraju/trialscope/pkg/apipath"
	"github.com/kiranshivaraju/trialscope/pkg/models"
)

const maxSubmitBody = 64 << 10

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Service defines the lifecycle operations the handlers depend on.
type Service interface {
	Submit(ctx context.Context, molecule, prompt string) (string, error)
	Status(ctx context.Context, jobID string) (*models.StatusResponse, error)
	Report(ctx context.Context, jobID string) (*report.Report, error)
	TrialsXLSX(ctx context.Context, jobID string) ([]byte, error)
	History(ctx context.Context) history.Listing
	Download(ctx context.Context, jobID, kind string) (*research.Artifact, error)
}

// Research serves the research job routes.
type Research struct {
	svc      Service
	statuses singleflight.Group
	logger   *slog.Logger
}

// NewResearch creates the research handlers. A nil logger uses slog.Default().
func NewResearch(svc Service, logger *slog.Logger) *Research {
	if logger == nil {
		logger = slog.Default()
	}
	return &Research{svc: svc, logger: logger}
}

type submitRequest struct {
	Molecule string `json:"molecule"`
	Prompt   string `json:"prompt"`
}

type submitResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// Submit handles POST /api/v1/research.
func (h *Research) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBody)).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}

	jobID, err := h.svc.Submit(r.Context(), req.Molecule, req.Prompt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Accepted(w, submitResponse{
		JobID:     jobID,
		StatusURL: "/api/v1/research/" + jobID,
	})
}

type statusResponse struct {
	JobID     string           `json:"job_id"`
	Molecule  string           `json:"molecule,omitempty"`
	Status    models.Status    `json:"status"`
	CreatedAt models.Timestamp `json:"created_at"`
	Progress  progress.View    `json:"progress"`
	Report    *report.Report   `json:"report,omitempty"`
}

// Status handles GET /api/v1/research/{jobID}. Concurrent requests for the
// same job share one backend fetch.
func (h *Research) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	// The shared fetch must survive any single caller going away.
	ctx := context.WithoutCancel(r.Context())
	v, err, shared := h.statuses.Do(jobID, func() (any, error) {
		return h.svc.Status(ctx, jobID)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := v.(*models.StatusResponse)
	if shared {
		h.logger.Debug("status fetch shared", "job_id", jobID, "request_id", mw.GetRequestID(r.Context()))
	}

	out := statusResponse{
		JobID:     resp.JobID,
		Status:    resp.Status,
		CreatedAt: resp.CreatedAt,
		Progress:  progress.Snapshot(resp.Status, ""),
	}
	if resp.CanonicalResult != nil {
		out.Molecule = resp.CanonicalResult.Molecule
		if resp.Status == models.StatusCompleted {
			rep := report.Build(resp.JobID, resp.CanonicalResult)
			out.Report = &rep
		}
	}
	response.JSON(w, out)
}

// Report handles GET /api/v1/research/{jobID}/report.
func (h *Research) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Report(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, rep)
}

// TrialsXLSX handles GET /api/v1/research/{jobID}/trials.xlsx.
func (h *Research) TrialsXLSX(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	data, err := h.svc.TrialsXLSX(r.Context(), jobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment(jobID+"_trials.xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Download handles GET /api/v1/research/{jobID}/download/{type} by streaming
// the backend artifact through.
func (h *Research) Download(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	kind := chi.URLParam(r, "type")

	a, err := h.svc.Download(r.Context(), jobID, kind)
	if err != nil {
		if research.IsNotFound(err) {
			response.Error(w, http.StatusNotFound, "ARTIFACT_NOT_FOUND",
				"The artifact is not available yet", nil)
			return
		}
		h.writeError(w, r, err)
		return
	}
	defer a.Body.Close()

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachment(a.Filename))
	if a.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(a.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, a.Body)
	if err != nil {
		// Headers are gone; all that is left is to log.
		h.logger.Warn("artifact stream interrupted",
			"job_id", jobID, "kind", a.Kind, "bytes", n, "error", err,
			"request_id", mw.GetRequestID(r.Context()))
	}
}

// History handles GET /api/v1/jobs.
func (h *Research) History(w http.ResponseWriter, r *http.Request) {
	listing := h.svc.History(r.Context())

	meta := response.ListMeta{Total: len(listing.Jobs), Degraded: listing.Degraded}
	if listing.Err != nil {
		meta.Error = "Job history is temporarily unavailable"
	}
	response.Collection(w, listing.Jobs, meta)
}

func (h *Research) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *lifecycle.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error(),
			map[string]string{"field": ve.Field})
	case errors.Is(err, apipath.ErrUnknownArtifact):
		response.Error(w, http.StatusBadRequest, "INVALID_ARTIFACT",
			"Artifact type must be pdf or ppt", nil)
	case errors.Is(err, lifecycle.ErrNotReady):
		response.Error(w, http.StatusConflict, "JOB_NOT_READY",
			"The research job has not finished yet", nil)
	case errors.Is(err, lifecycle.ErrJobFailed):
		response.Error(w, http.StatusUnprocessableEntity, "JOB_FAILED",
			"The research job failed and produced no report", nil)
	case research.IsNotFound(err):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND",
			"No research job with that id", nil)
	case errors.Is(err, research.ErrBackendTimeout):
		response.Error(w, http.StatusGatewayTimeout, "BACKEND_TIMEOUT",
			"The research backend did not respond in time", nil)
	case errors.Is(err, lifecycle.ErrNoResult), errors.Is(err, research.ErrTransport):
		h.logger.Warn("research backend error", "error", err, "request_id", mw.GetRequestID(r.Context()))
		response.Error(w, http.StatusBadGateway, "BACKEND_UNAVAILABLE",
			"The research backend is not available", nil)
	default:
		h.logger.Error("unhandled error", "error", err, "request_id", mw.GetRequestID(r.Context()))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

// Compile-time check that the lifecycle controller satisfies Service.
var _ Service = (*lifecycle.Controller)(nil)

package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmkorolev/imageflow/internal/config"
	"github.com/dmkorolev/imageflow/internal/core/domain"
	"github.com/dmkorolev/imageflow/internal/core/ports"
)

const maxBatchMemory = 64 << 20 // multipart parse buffer

type Router struct {
	cfg       config.Config
	submitter ports.BatchSubmitter
	pipeline  ports.PipelineOperator
	metrics   MetricsMiddleware
}

// MetricsMiddleware lets the bootstrap plug HTTP server metrics in
// without the router depending on a concrete registry.
type MetricsMiddleware func(next http.Handler) http.Handler

func NewRouter(
	cfg config.Config,
	submitter ports.BatchSubmitter,
	pipeline ports.PipelineOperator,
	metrics MetricsMiddleware,
) *Router {
	return &Router{
		cfg:       cfg,
		submitter: submitter,
		pipeline:  pipeline,
		metrics:   metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/batches", rt.submitBatch)
	mux.HandleFunc("GET /v1/batches/{id}", rt.getBatch)
	mux.HandleFunc("GET /v1/batches/{id}/events", rt.streamBatchEvents)
	mux.HandleFunc("POST /v1/batches/{id}/retry", rt.retryAllFailed)
	mux.HandleFunc("POST /v1/batches/{id}/items/{index}/retry", rt.retrySingle)
	mux.HandleFunc("POST /v1/batches/{id}/advance", rt.advance)
	mux.HandleFunc("POST /v1/batches/{id}/back", rt.back)
	mux.HandleFunc("PUT /v1/batches/{id}/groups/{key}", rt.renameDraft)
	mux.HandleFunc("POST /v1/batches/{id}/commit", rt.commit)
	mux.HandleFunc("DELETE /v1/batches/{id}", rt.closeBatch)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics(handler)
	}
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBatchMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form expected"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	concurrency := 0
	if raw := strings.TrimSpace(r.FormValue("concurrency")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "concurrency must be a positive integer"})
			return
		}
		concurrency = parsed
	}

	files := make([]ports.SubmittedFile, 0, len(headers))
	var closers []interface{ Close() error }
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable multipart file"})
			return
		}
		closers = append(closers, f)
		files = append(files, ports.SubmittedFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        f,
		})
	}

	view, err := rt.submitter.Submit(r.Context(), files, concurrency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	view, err := rt.pipeline.Snapshot(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) retryAllFailed(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if _, err := rt.pipeline.Snapshot(batchID); err != nil {
		writeError(w, r, err)
		return
	}
	go func() {
		if err := rt.pipeline.RetryAllFailed(detachedContext(r), batchID); err != nil {
			slog.Error("retry_all_failed", "batch_id", batchID, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

func (rt *Router) retrySingle(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item index must be an integer"})
		return
	}

	view, err := rt.pipeline.Snapshot(batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if index < 0 || index >= len(view.Items) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "item index out of range"})
		return
	}
	if view.Items[index].Status != domain.StatusFailed {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "only failed items can be retried"})
		return
	}

	go func() {
		if err := rt.pipeline.RetrySingle(detachedContext(r), batchID, index); err != nil {
			slog.Error("retry_single_failed", "batch_id", batchID, "index", index, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

func (rt *Router) advance(w http.ResponseWriter, r *http.Request) {
	if err := rt.pipeline.AdvanceToGrouping(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := rt.pipeline.Snapshot(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) back(w http.ResponseWriter, r *http.Request) {
	if err := rt.pipeline.BackToConverting(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": string(domain.StageConverting)})
}

func (rt *Router) renameDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := rt.pipeline.RenameDraft(r.PathValue("id"), r.PathValue("key"), strings.TrimSpace(req.DisplayName)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (rt *Router) commit(w http.ResponseWriter, r *http.Request) {
	groups, reportURL, err := rt.pipeline.Commit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups":     groups,
		"report_url": reportURL,
	})
}

func (rt *Router) closeBatch(w http.ResponseWriter, r *http.Request) {
	if err := rt.pipeline.Close(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

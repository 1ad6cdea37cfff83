package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lokeshec23/GC-AI/internal/document"
	"github.com/lokeshec23/GC-AI/internal/middleware"
	"github.com/lokeshec23/GC-AI/internal/progress"
	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/session"
	"github.com/lokeshec23/GC-AI/internal/settings"
	"github.com/lokeshec23/GC-AI/internal/text"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var uploadExts = map[string]bool{".pdf": true, ".txt": true, ".md": true, ".xlsx": true}

type Handler struct {
	service   *Service
	uploadDir string
	maxBytes  int64
	keepalive time.Duration
}

func NewHandler(service *Service, uploadDir string, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &Handler{
		service:   service,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		keepalive: 15 * time.Second,
	}
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.parseForm(w, r) {
		return
	}

	req, ok := h.settingsRequest(w, r)
	if !ok {
		return
	}

	up, err := h.saveUpload(r, "file", uploadExts)
	if err != nil {
		h.uploadError(ctx, w, err)
		return
	}

	sess, err := h.service.Ingest(ctx, IngestRequest{
		File:     up,
		Prompt:   r.FormValue("custom_prompt"),
		Settings: req,
	})
	if err != nil {
		h.submitError(ctx, w, err)
		return
	}

	h.accepted(ctx, w, sess.ID)
}

func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.parseForm(w, r) {
		return
	}

	req, ok := h.settingsRequest(w, r)
	if !ok {
		return
	}

	first, err := h.saveUpload(r, "file1", uploadExts)
	if err != nil {
		h.uploadError(ctx, w, err)
		return
	}
	second, err := h.saveUpload(r, "file2", uploadExts)
	if err != nil {
		h.service.discard(ctx, first)
		h.uploadError(ctx, w, err)
		return
	}

	sess, err := h.service.Compare(ctx, CompareRequest{
		First:    first,
		Second:   second,
		Prompt:   r.FormValue("custom_prompt"),
		Settings: req,
	})
	if err != nil {
		h.submitError(ctx, w, err)
		return
	}

	h.accepted(ctx, w, sess.ID)
}

// Progress streams tracker updates as server-sent events until the job
// reaches a terminal state or the client goes away.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(ctx, w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	updates, cancel := sess.Progress.Subscribe()
	defer cancel()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(u)
			if err != nil {
				slog.ErrorContext(ctx, "failed to encode progress", "error", err)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if u.Status.Terminal() {
				return
			}
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	snap := sess.Progress.Snapshot()
	resp := map[string]interface{}{
		"status":   snap.Status,
		"progress": snap.Progress,
		"message":  snap.Message,
		"warnings": nonNil(sess.Warnings()),
	}
	if snap.Status == progress.StatusCompleted {
		resp["result_url"] = "/download/" + sess.ID
	}
	if snap.Error != "" {
		resp["error"] = snap.Error
	}

	h.writeJSON(ctx, w, http.StatusOK, resp)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, res, ok := h.result(w, r)
	if !ok {
		return
	}

	var data interface{}
	count := 0
	switch sess.Kind {
	case session.KindCompare:
		entries := res.Diff
		if entries == nil {
			entries = []schema.DiffEntry{}
		}
		data, count = entries, len(entries)
	default:
		rows := res.Rows
		if rows == nil {
			rows = []schema.Row{}
		}
		data, count = rows, len(rows)
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": data,
		"meta": map[string]interface{}{
			"kind":     sess.Kind,
			"count":    count,
			"warnings": nonNil(res.Warnings),
		},
	})
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, res, ok := h.result(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Artifact)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Artifact); err != nil {
		slog.ErrorContext(ctx, "failed to write artifact", "error", err)
	}
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := h.service.Close(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Session not found", http.StatusNotFound)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large or malformed form", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) settingsRequest(w http.ResponseWriter, r *http.Request) (settings.Request, bool) {
	req := settings.Request{
		Provider: strings.ToLower(strings.TrimSpace(r.FormValue("model_provider"))),
		Model:    strings.TrimSpace(r.FormValue("model_name")),
		Strategy: text.Strategy(r.FormValue("chunk_strategy")),
	}
	if req.Provider == "" || req.Model == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "model_provider and model_name are required", http.StatusBadRequest)
		return req, false
	}

	var errs []string
	req.Temperature = optFloat(r, "temperature", &errs)
	req.TopP = optFloat(r, "top_p", &errs)
	if v := optInt(r, "max_output_tokens", &errs); v != nil {
		n := int32(*v)
		req.MaxOutputTokens = &n
	}
	req.PagesPerChunk = optInt(r, "pages_per_chunk", &errs)
	req.ChunkSize = optInt(r, "chunk_size", &errs)
	req.ChunkOverlap = optInt(r, "chunk_overlap", &errs)

	if len(errs) > 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", strings.Join(errs, "; "), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func optFloat(r *http.Request, field string, errs *[]string) *float32 {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		*errs = append(*errs, field+" must be a number")
		return nil
	}
	f := float32(v)
	return &f
}

func optInt(r *http.Request, field string, errs *[]string) *int {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, field+" must be an integer")
		return nil
	}
	return &v
}

var (
	errNoFile          = errors.New("unable to retrieve file")
	errUnsupportedType = errors.New("unsupported file type")
)

func (h *Handler) saveUpload(r *http.Request, field string, allowed map[string]bool) (Upload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %s", errNoFile, field)
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !allowed[ext] {
		return Upload{}, fmt.Errorf("%w: %s", errUnsupportedType, ext)
	}

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return Upload{}, fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Clean(filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), name)))
	dst, err := os.Create(path) // #nosec G304 -- path is UUID-based, not raw user input
	if err != nil {
		return Upload{}, fmt.Errorf("failed to save file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		_ = os.Remove(path)
		return Upload{}, fmt.Errorf("failed to write file: %w", err)
	}
	return Upload{Path: path, Name: name}, nil
}

func (h *Handler) uploadError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errNoFile) || errors.Is(err, errUnsupportedType) {
		h.writeError(ctx, w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
		return
	}
	slog.ErrorContext(ctx, "upload failed", "error", err)
	h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}

func (h *Handler) submitError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case text.IsChunkingError(err):
		h.writeError(ctx, w, "BAD_REQUEST", err.Error(), http.StatusBadRequest)
	case errors.Is(err, settings.ErrInvalidSettings),
		errors.Is(err, settings.ErrUnsupportedProvider),
		errors.Is(err, settings.ErrUnsupportedModel),
		errors.Is(err, settings.ErrMissingCredentials),
		errors.Is(err, document.ErrUnsupportedFormat):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, "failed to submit job", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) accepted(ctx context.Context, w http.ResponseWriter, id string) {
	slog.InfoContext(ctx, "job accepted", "session_id", id)
	h.writeJSON(ctx, w, http.StatusAccepted, map[string]string{"session_id": id})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.service.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, "NOT_FOUND", "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) (*session.Session, *session.Result, bool) {
	sess, ok := h.session(w, r)
	if !ok {
		return nil, nil, false
	}
	res, ok := sess.Result()
	if !ok {
		h.writeError(r.Context(), w, "NOT_FOUND", "result not ready", http.StatusNotFound)
		return nil, nil, false
	}
	return sess, res, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}

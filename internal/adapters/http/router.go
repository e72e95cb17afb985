package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/pdf-markup/internal/config"
	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/ports"
	"github.com/kirillkom/pdf-markup/internal/core/session"
	"github.com/kirillkom/pdf-markup/internal/observability/metrics"
)

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Options struct {
	Exporter ports.EntityExporter
	// Entities is told about every entity a gesture creates.
	Entities       ports.EntityObserver
	Metrics        *metrics.HTTPServerMetrics
	MetricsHandler http.Handler
}

type Router struct {
	cfg            config.Config
	sessions       ports.SessionRegistry
	opener         ports.DocumentOpener
	processor      ports.DocumentProcessor
	exporter       ports.EntityExporter
	entities       ports.EntityObserver
	metrics        *metrics.HTTPServerMetrics
	metricsHandler http.Handler
}

func NewRouter(
	cfg config.Config,
	sessions ports.SessionRegistry,
	opener ports.DocumentOpener,
	processor ports.DocumentProcessor,
	options Options,
) *Router {
	metricsHandler := options.MetricsHandler
	if metricsHandler == nil && options.Metrics != nil {
		metricsHandler = options.Metrics.Handler()
	}
	return &Router{
		cfg:            cfg,
		sessions:       sessions,
		opener:         opener,
		processor:      processor,
		exporter:       options.Exporter,
		entities:       options.Entities,
		metrics:        options.Metrics,
		metricsHandler: metricsHandler,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metricsHandler != nil {
		mux.Handle("GET /metrics", rt.metricsHandler)
	}

	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", rt.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", rt.deleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/document", rt.openDocument)
	mux.HandleFunc("POST /v1/sessions/{id}/mode", rt.setMode)
	mux.HandleFunc("DELETE /v1/sessions/{id}/watermark", rt.clearWatermark)
	mux.HandleFunc("POST /v1/sessions/{id}/tap", rt.tap)
	mux.HandleFunc("POST /v1/sessions/{id}/drag", rt.drag)
	mux.HandleFunc("GET /v1/sessions/{id}/overlays", rt.overlays)
	mux.HandleFunc("POST /v1/sessions/{id}/process", rt.process)
	mux.HandleFunc("GET /v1/sessions/{id}/runs", rt.runs)
	mux.HandleFunc("GET /v1/sessions/{id}/export.xlsx", rt.exportXLSX)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIQueueWaitMs)*time.Millisecond, rt.rejected(metrics.ReasonBackpressure))
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejected(metrics.ReasonRateLimit))
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return handler
}

func (rt *Router) rejected(reason string) func(path string) {
	if rt.metrics == nil {
		return nil
	}
	return func(path string) { rt.metrics.RecordRejected(path, reason) }
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	domain.Snapshot
}

func newSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		ID:        sess.ID(),
		CreatedAt: sess.CreatedAt(),
		UpdatedAt: sess.UpdatedAt(),
		Snapshot:  sess.Snapshot(),
	}
}

func (rt *Router) createSession(w http.ResponseWriter, _ *http.Request) {
	sess := rt.sessions.Create()
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Delete(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type documentResponse struct {
	Document domain.DocumentRef  `json:"document"`
	Info     domain.DocumentInfo `json:"info"`
}

// openDocument accepts either a multipart upload in field "file" or a JSON
// reference {"uri": "...", "name": "..."} to a document the server can reach.
func (rt *Router) openDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var ref domain.DocumentRef
		if !decodeJSON(w, r, &ref) {
			return
		}
		info, err := rt.opener.Open(r.Context(), sess, ref)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, documentResponse{Document: sess.Document(), Info: info})
		return
	}

	if rt.cfg.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(rt.cfg.MaxUploadMB+1)<<20)
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "document is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	ref, info, err := rt.opener.Upload(r.Context(), sess, fileHeader.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{Document: ref, Info: info})
}

type setModeRequest struct {
	Mode string `json:"mode"`
	// WatermarkText answers the watermark prompt; null or absent cancels it.
	WatermarkText *string `json:"watermarkText"`
}

func (rt *Router) setMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req setModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	answer := session.PromptAnswer{Cancelled: true}
	if req.WatermarkText != nil {
		answer = session.PromptAnswer{Text: *req.WatermarkText}
	}
	if err := sess.SetMode(r.Context(), mode, answer); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (rt *Router) clearWatermark(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	sess.ClearWatermark()
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

type gestureResponse struct {
	Created bool           `json:"created"`
	Entity  *domain.Entity `json:"entity,omitempty"`
}

func (rt *Router) tap(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	var ev domain.TapEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	entity, err := sess.HandleTap(ev)
	rt.writeGesture(w, r, entity, err)
}

func (rt *Router) drag(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	var ev domain.DragEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	entity, err := sess.HandleDrag(ev)
	rt.writeGesture(w, r, entity, err)
}

func (rt *Router) writeGesture(w http.ResponseWriter, r *http.Request, entity *domain.Entity, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entity != nil && rt.entities != nil {
		rt.entities.RecordEntity(entity.Kind)
	}
	writeJSON(w, http.StatusOK, gestureResponse{Created: entity != nil, Entity: entity})
}

type overlaysResponse struct {
	Page     int              `json:"page"`
	Overlays []domain.Overlay `json:"overlays"`
}

func (rt *Router) overlays(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'page' must be a positive integer"})
		return
	}
	width, errW := strconv.ParseFloat(query.Get("width"), 64)
	height, errH := strconv.ParseFloat(query.Get("height"), 64)
	if errW != nil || errH != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameters 'width' and 'height' are required"})
		return
	}
	if !finite(width) || !finite(height) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameters 'width' and 'height' must be finite numbers"})
		return
	}

	overlays := sess.Overlays(page, width, height)
	if overlays == nil {
		overlays = []domain.Overlay{}
	}
	writeJSON(w, http.StatusOK, overlaysResponse{Page: page, Overlays: overlays})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (rt *Router) process(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	ref, err := rt.processor.Process(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.DocumentRef{"document": ref})
}

func (rt *Router) runs(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'limit' must be a positive integer"})
			return
		}
		limit = parsed
	}

	runs, err := rt.processor.Runs(r.Context(), sess.ID(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []domain.ProcessingRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (rt *Router) exportXLSX(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.session(w, r)
	if !ok {
		return
	}
	if rt.exporter == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "export is not configured"})
		return
	}

	var buf bytes.Buffer
	if err := rt.exporter.Export(r.Context(), sess.Snapshot(), &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "markup-"+sess.ID()+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := rt.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

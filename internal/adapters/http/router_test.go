package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/pdf-markup/internal/config"
	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/session"
	"github.com/kirillkom/pdf-markup/internal/core/usecase"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/docsource"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/pdfinspect"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/storage/localfs"
)

type openerFake struct {
	info     domain.DocumentInfo
	err      error
	uploaded []byte
}

func (f *openerFake) Open(_ context.Context, sess *session.Session, ref domain.DocumentRef) (domain.DocumentInfo, error) {
	if f.err != nil {
		return domain.DocumentInfo{}, f.err
	}
	if err := sess.LoadDocument(ref, f.info); err != nil {
		return domain.DocumentInfo{}, err
	}
	return f.info, nil
}

func (f *openerFake) Upload(_ context.Context, sess *session.Session, filename string, body io.Reader) (domain.DocumentRef, domain.DocumentInfo, error) {
	if f.err != nil {
		return domain.DocumentRef{}, domain.DocumentInfo{}, f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.DocumentRef{}, domain.DocumentInfo{}, err
	}
	f.uploaded = data
	ref := domain.DocumentRef{URI: "file:///store/" + filename, Name: filename}
	if err := sess.LoadDocument(ref, f.info); err != nil {
		return domain.DocumentRef{}, domain.DocumentInfo{}, err
	}
	return ref, f.info, nil
}

type processorFake struct {
	ref  domain.DocumentRef
	err  error
	runs []domain.ProcessingRun
}

func (f *processorFake) Process(_ context.Context, sess *session.Session) (domain.DocumentRef, error) {
	if f.err != nil {
		return domain.DocumentRef{}, f.err
	}
	if _, err := sess.BeginProcessing(); err != nil {
		return domain.DocumentRef{}, err
	}
	sess.CompleteProcessing(f.ref)
	return f.ref, nil
}

func (f *processorFake) Runs(_ context.Context, sessionID string, _ int) ([]domain.ProcessingRun, error) {
	if f.runs == nil {
		return nil, domain.NewError(domain.ErrNotFound, "run history is not configured")
	}
	out := make([]domain.ProcessingRun, 0, len(f.runs))
	for _, run := range f.runs {
		if run.SessionID == sessionID {
			out = append(out, run)
		}
	}
	return out, nil
}

type exporterFake struct{}

func (exporterFake) Export(_ context.Context, snapshot domain.Snapshot, w io.Writer) error {
	_, err := io.WriteString(w, "xlsx:"+snapshot.Document.URI)
	return err
}

type entityCounter struct {
	kinds []domain.EntityKind
}

func (c *entityCounter) RecordEntity(kind domain.EntityKind) {
	c.kinds = append(c.kinds, kind)
}

type testRouter struct {
	handler   http.Handler
	sessions  *session.Registry
	opener    *openerFake
	processor *processorFake
	entities  *entityCounter
}

func newTestRouter(cfg config.Config) *testRouter {
	h := &testRouter{
		sessions:  session.NewRegistry(session.Options{}),
		opener:    &openerFake{info: domain.DocumentInfo{Pages: 3}},
		processor: &processorFake{ref: domain.DocumentRef{URI: "https://files.example/out.pdf", Name: "out.pdf"}},
		entities:  &entityCounter{},
	}
	h.handler = NewRouter(cfg, h.sessions, h.opener, h.processor, Options{
		Exporter: exporterFake{},
		Entities: h.entities,
	}).Handler()
	return h
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestRouter(cfg).handler
}

func (h *testRouter) do(method, path string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	return res
}

func (h *testRouter) createSession(t *testing.T) string {
	t.Helper()
	res := h.do(http.MethodPost, "/v1/sessions", nil)
	if res.Code != http.StatusCreated {
		t.Fatalf("create session expected 201, got %d", res.Code)
	}
	var body sessionResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if body.ID == "" || body.Mode != domain.ModeView {
		t.Fatalf("unexpected new session %+v", body)
	}
	return body.ID
}

func (h *testRouter) snapshot(t *testing.T, id string) sessionResponse {
	t.Helper()
	res := h.do(http.MethodGet, "/v1/sessions/"+id, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("get session expected 200, got %d", res.Code)
	}
	var body sessionResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return body
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCropFlowThroughAPI(t *testing.T) {
	h := newTestRouter(config.Config{})
	id := h.createSession(t)
	base := "/v1/sessions/" + id

	res := h.do(http.MethodPost, base+"/document", map[string]string{"uri": "file:///docs/a.pdf"})
	if res.Code != http.StatusOK {
		t.Fatalf("open expected 200, got %d: %s", res.Code, res.Body.String())
	}

	res = h.do(http.MethodPost, base+"/mode", map[string]any{"mode": "crop"})
	if res.Code != http.StatusOK {
		t.Fatalf("mode expected 200, got %d", res.Code)
	}

	res = h.do(http.MethodPost, base+"/tap", map[string]any{"page": 1, "x": 10, "y": 10, "pageWidth": 200, "pageHeight": 400})
	var tapResp gestureResponse
	if err := json.NewDecoder(res.Body).Decode(&tapResp); err != nil {
		t.Fatalf("decode tap: %v", err)
	}
	if res.Code != http.StatusOK || tapResp.Created {
		t.Fatalf("tap in crop mode should create nothing, got %d %+v", res.Code, tapResp)
	}

	res = h.do(http.MethodPost, base+"/drag", map[string]any{"page": 1, "x1": 40, "y1": 40, "x2": 140, "y2": 100, "pageWidth": 200, "pageHeight": 400})
	var dragResp gestureResponse
	if err := json.NewDecoder(res.Body).Decode(&dragResp); err != nil {
		t.Fatalf("decode drag: %v", err)
	}
	if !dragResp.Created || dragResp.Entity == nil || dragResp.Entity.Crop == nil {
		t.Fatalf("expected crop entity, got %+v", dragResp)
	}
	crop := dragResp.Entity.Crop
	if !approx(crop.Left, 0.2) || !approx(crop.Top, 0.1) || !approx(crop.Width, 0.5) || !approx(crop.Height, 0.15) {
		t.Fatalf("unexpected crop %+v", crop)
	}
	if len(h.entities.kinds) != 1 || h.entities.kinds[0] != domain.EntityCrop {
		t.Fatalf("expected one crop entity recorded, got %v", h.entities.kinds)
	}

	res = h.do(http.MethodGet, base+"/overlays?page=1&width=400&height=800", nil)
	var overlays overlaysResponse
	if err := json.NewDecoder(res.Body).Decode(&overlays); err != nil {
		t.Fatalf("decode overlays: %v", err)
	}
	if len(overlays.Overlays) != 1 {
		t.Fatalf("expected one overlay, got %+v", overlays)
	}
	o := overlays.Overlays[0]
	if o.Kind != domain.EntityCrop || !approx(o.Left, 80) || !approx(o.Top, 80) || !approx(o.Width, 200) || !approx(o.Height, 120) {
		t.Fatalf("unexpected overlay %+v", o)
	}

	res = h.do(http.MethodGet, base+"/overlays?page=2&width=400&height=800", nil)
	if err := json.NewDecoder(res.Body).Decode(&overlays); err != nil {
		t.Fatalf("decode overlays: %v", err)
	}
	if len(overlays.Overlays) != 0 {
		t.Fatalf("page 2 should have no overlays, got %+v", overlays.Overlays)
	}

	res = h.do(http.MethodPost, base+"/process", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("process expected 200, got %d", res.Code)
	}
	var processed map[string]domain.DocumentRef
	if err := json.NewDecoder(res.Body).Decode(&processed); err != nil {
		t.Fatalf("decode process: %v", err)
	}
	if processed["document"].URI != "https://files.example/out.pdf" {
		t.Fatalf("unexpected processed document %+v", processed)
	}

	snap := h.snapshot(t, id)
	if snap.Document.URI != "https://files.example/out.pdf" || snap.Crop != nil || snap.Busy {
		t.Fatalf("unexpected snapshot after process %+v", snap)
	}
}

func TestSetModeWatermarkPrompt(t *testing.T) {
	h := newTestRouter(config.Config{})
	id := h.createSession(t)
	base := "/v1/sessions/" + id

	res := h.do(http.MethodPost, base+"/mode", map[string]any{"mode": "watermark", "watermarkText": "DRAFT"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if snap := h.snapshot(t, id); snap.Mode != domain.ModeWatermark || snap.Watermark.Text != "DRAFT" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	// No text means the prompt was cancelled: mode switches, text stays.
	h.do(http.MethodPost, base+"/mode", map[string]any{"mode": "view"})
	h.do(http.MethodPost, base+"/mode", map[string]any{"mode": "watermark"})
	if snap := h.snapshot(t, id); snap.Mode != domain.ModeWatermark || snap.Watermark.Text != "DRAFT" {
		t.Fatalf("cancelled prompt changed watermark: %+v", snap)
	}

	res = h.do(http.MethodDelete, base+"/watermark", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("clear watermark expected 200, got %d", res.Code)
	}
	if snap := h.snapshot(t, id); snap.Watermark.Text != "" {
		t.Fatalf("watermark not cleared: %+v", snap.Watermark)
	}

	res = h.do(http.MethodPost, base+"/mode", map[string]any{"mode": "sketch"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentMultipart(t *testing.T) {
	h := newTestRouter(config.Config{MaxUploadMB: 1})
	id := h.createSession(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4 body"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body documentResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Document.Name != "report.pdf" || body.Info.Pages != 3 {
		t.Fatalf("unexpected upload response %+v", body)
	}
	if string(h.opener.uploaded) != "%PDF-1.4 body" {
		t.Fatalf("upload body not forwarded: %q", h.opener.uploaded)
	}
}

func TestUploadWithoutFileReturns400(t *testing.T) {
	h := newTestRouter(config.Config{})
	id := h.createSession(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "no file")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestOpenNonPDFReturns422(t *testing.T) {
	h := newTestRouter(config.Config{})
	h.opener.err = domain.NewError(domain.ErrSelection, domain.MsgNotPDF)
	id := h.createSession(t)

	res := h.do(http.MethodPost, "/v1/sessions/"+id+"/document", map[string]string{"uri": "file:///notes.txt"})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestOverlaysValidatesQuery(t *testing.T) {
	h := newTestRouter(config.Config{})
	id := h.createSession(t)

	for _, query := range []string{
		"",
		"?page=0&width=1&height=1",
		"?page=1",
		"?page=1&width=x&height=2",
		"?page=1&width=Inf&height=800",
		"?page=1&width=400&height=NaN",
	} {
		res := h.do(http.MethodGet, "/v1/sessions/"+id+"/overlays"+query, nil)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("query %q expected 400, got %d", query, res.Code)
		}
	}
}

func TestRunsAndExport(t *testing.T) {
	h := newTestRouter(config.Config{})
	id := h.createSession(t)

	res := h.do(http.MethodGet, "/v1/sessions/"+id+"/runs", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("runs without history expected 404, got %d", res.Code)
	}

	h.processor.runs = []domain.ProcessingRun{
		{ID: "r-1", SessionID: id, Mode: domain.ModeCompress, Status: domain.RunSucceeded},
		{ID: "r-2", SessionID: "other", Mode: domain.ModeOCR, Status: domain.RunFailed},
	}
	res = h.do(http.MethodGet, "/v1/sessions/"+id+"/runs?limit=10", nil)
	var runs struct {
		Runs []domain.ProcessingRun `json:"runs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs.Runs) != 1 || runs.Runs[0].ID != "r-1" {
		t.Fatalf("unexpected runs %+v", runs.Runs)
	}

	res = h.do(http.MethodGet, "/v1/sessions/"+id+"/runs?limit=abc", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit expected 400, got %d", res.Code)
	}

	res = h.do(http.MethodGet, "/v1/sessions/"+id+"/export.xlsx", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("export expected 200, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != xlsxMimeType {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}
	if res.Body.String() != "xlsx:" {
		t.Fatalf("unexpected export body %q", res.Body.String())
	}
}

func TestDeleteSession(t *testing.T) {
	h := newTestRouter(config.Config{})
	id := h.createSession(t)

	if res := h.do(http.MethodDelete, "/v1/sessions/"+id, nil); res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if res := h.do(http.MethodDelete, "/v1/sessions/"+id, nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", res.Code)
	}
}

func TestInvalidGestureJSONReturns400(t *testing.T) {
	h := newTestRouter(config.Config{})
	id := h.createSession(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/tap", bytes.NewBufferString("{"))
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestOpenOutsideDocumentRootsReturns400(t *testing.T) {
	root := t.TempDir()
	storage, err := localfs.New(root)
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	source := docsource.New(docsource.Options{Policy: &docsource.Policy{Roots: []string{root}}})
	opener := usecase.NewOpenDocumentUseCase(source, pdfinspect.New(nil), storage, 0, nil)
	sessions := session.NewRegistry(session.Options{})
	h := &testRouter{
		sessions: sessions,
		handler:  NewRouter(config.Config{}, sessions, opener, &processorFake{}, Options{}).Handler(),
	}
	id := h.createSession(t)

	var bodies []string
	for _, uri := range []string{"/etc/passwd", "file:///etc/passwd", "/no/such/file.pdf"} {
		res := h.do(http.MethodPost, "/v1/sessions/"+id+"/document", map[string]string{"uri": uri})
		if res.Code != http.StatusBadRequest {
			t.Fatalf("open %q expected 400, got %d", uri, res.Code)
		}
		bodies = append(bodies, res.Body.String())
	}
	for _, body := range bodies[1:] {
		if body != bodies[0] {
			t.Fatalf("expected identical rejections, got %q and %q", bodies[0], body)
		}
	}
	if snap := h.snapshot(t, id); !snap.Document.IsZero() {
		t.Fatalf("expected no document after rejected opens, got %+v", snap.Document)
	}

	res := h.do(http.MethodPost, "/v1/sessions/"+id+"/document", map[string]string{"uri": root + "/missing.pdf"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("missing file inside root expected 404, got %d", res.Code)
	}
}

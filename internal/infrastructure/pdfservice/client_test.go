package pdfservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/resilience"
)

var samplePDF = []byte("%PDF-1.4\n%test\n")

type storageFake struct {
	key  string
	data []byte
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (domain.DocumentRef, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	f.key = key
	f.data = raw
	return domain.DocumentRef{URI: "file:///results/" + key, Name: key}, nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func mustContract(t *testing.T) *Contract {
	t.Helper()
	c, err := LoadContract()
	if err != nil {
		t.Fatalf("LoadContract() error = %v", err)
	}
	return c
}

func TestProcessCropSendsDocumentedPayload(t *testing.T) {
	var captured map[string]any
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processedPdfUri":"https://files.example/out/cropped.pdf"}`))
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, Options{Contract: mustContract(t)})
	ref, err := client.Process(context.Background(), domain.ProcessRequest{
		Mode: domain.ModeCrop,
		PDF:  samplePDF,
		Crop: &domain.CropArea{PageNumber: 2, Left: 0.1, Top: 0.2, Right: 0.6, Bottom: 0.7, Width: 0.5, Height: 0.5},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if ref.URI != "https://files.example/out/cropped.pdf" || ref.Name != "cropped.pdf" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if path != "/pdf/crop" {
		t.Fatalf("unexpected path %q", path)
	}
	if captured["pdf"] != base64.StdEncoding.EncodeToString(samplePDF) {
		t.Fatalf("pdf not base64 encoded: %v", captured["pdf"])
	}
	if captured["page"] != float64(2) || captured["x"] != 0.1 || captured["y"] != 0.2 || captured["width"] != 0.5 || captured["height"] != 0.5 {
		t.Fatalf("unexpected crop fields %v", captured)
	}
}

func TestProcessAnnotateAddsPresentationDefaults(t *testing.T) {
	var captured struct {
		Annotations []map[string]any `json:"annotations"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"resultUri":"file:///data/annotated.pdf"}`))
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, Options{Contract: mustContract(t)})
	ref, err := client.Process(context.Background(), domain.ProcessRequest{
		Mode:        domain.ModeAnnotate,
		PDF:         samplePDF,
		Annotations: []domain.Annotation{{PageNumber: 1, X: 0.25, Y: 0.075, Text: "Note 1"}},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if ref.URI != "file:///data/annotated.pdf" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if len(captured.Annotations) != 1 {
		t.Fatalf("expected one annotation, got %v", captured.Annotations)
	}
	a := captured.Annotations[0]
	if a["text"] != "Note 1" || a["color"] != "#FFEB3B" || a["type"] != "text" || a["page"] != float64(1) {
		t.Fatalf("unexpected annotation payload %v", a)
	}
}

func TestProcessWatermarkUsesTrailingSlashEndpoint(t *testing.T) {
	var captured map[string]any
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"processedPdfUri":"https://files.example/wm.pdf"}`))
	}))
	defer server.Close()

	client := NewWithOptions(server.URL+"/", Options{TrailingSlash: true})
	_, err := client.Process(context.Background(), domain.ProcessRequest{
		Mode:      domain.ModeWatermark,
		PDF:       samplePDF,
		Watermark: domain.WatermarkSpec{Text: "DRAFT"},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if path != "/pdf/watermark/" {
		t.Fatalf("unexpected path %q", path)
	}
	if captured["text"] != "DRAFT" || captured["opacity"] != 0.3 || captured["rotation"] != float64(45) || captured["fontSize"] != float64(48) {
		t.Fatalf("unexpected watermark payload %v", captured)
	}
}

func TestProcessRejectsMissingPreconditionsWithoutCalling(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.Process(context.Background(), domain.ProcessRequest{Mode: domain.ModeRedact, PDF: samplePDF})
	if !domain.IsKind(err, domain.ErrPrecondition) || err.Error() != domain.MsgNoRedactions {
		t.Fatalf("expected redaction precondition error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("service called despite failed precondition")
	}
}

func TestProcessSurfacesFailureMessages(t *testing.T) {
	cases := []struct {
		name   string
		status int
		ctype  string
		body   string
		want   string
	}{
		{name: "json message", status: http.StatusBadRequest, ctype: "application/json", body: `{"message":"page out of range"}`, want: "page out of range"},
		{name: "json error", status: http.StatusUnprocessableEntity, ctype: "application/json", body: `{"error":"encrypted document"}`, want: "encrypted document"},
		{name: "plain text", status: http.StatusBadRequest, ctype: "text/plain", body: "bad pdf data\n", want: "bad pdf data"},
		{name: "json without message", status: http.StatusBadRequest, ctype: "application/json", body: `{"code":17}`, want: "request failed with status 400"},
		{name: "empty", status: http.StatusForbidden, ctype: "text/plain", body: "", want: "request failed with status 403"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.ctype)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewWithOptions(server.URL, Options{Contract: mustContract(t)})
			_, err := client.Process(context.Background(), domain.ProcessRequest{Mode: domain.ModeCompress, PDF: samplePDF})
			if !domain.IsKind(err, domain.ErrTransport) {
				t.Fatalf("expected transport error, got %v", err)
			}
			if got := domain.UserMessage(err); got != tc.want {
				t.Fatalf("expected message %q, got %q", tc.want, got)
			}
		})
	}
}

func TestProcessDoesNotRetryServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "ocr engine crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 2, RetryInitialBackoff: time.Millisecond}),
	})
	_, err := client.Process(context.Background(), domain.ProcessRequest{Mode: domain.ModeOCR, PDF: samplePDF})
	if !domain.IsKind(err, domain.ErrTemporary) || !domain.IsKind(err, domain.ErrTransport) {
		t.Fatalf("expected temporary transport error, got %v", err)
	}
	if !strings.Contains(domain.UserMessage(err), "ocr engine crashed") {
		t.Fatalf("expected body in message, got %q", domain.UserMessage(err))
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single call, got %d", n)
	}
}

func TestProcessRetriesOnceAfterDroppedConnection(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Errorf("response writer cannot hijack")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		_, _ = w.Write([]byte(`{"processedPdfUri":"https://files.example/small.pdf"}`))
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 2, RetryInitialBackoff: time.Millisecond}),
	})
	ref, err := client.Process(context.Background(), domain.ProcessRequest{Mode: domain.ModeCompress, PDF: samplePDF})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if ref.URI != "https://files.example/small.pdf" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}

func TestProcessPersistsBinaryResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(samplePDF)
	}))
	defer server.Close()

	storage := &storageFake{}
	client := NewWithOptions(server.URL, Options{Storage: storage})
	ref, err := client.Process(context.Background(), domain.ProcessRequest{Mode: domain.ModeCompress, PDF: samplePDF})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !bytes.Equal(storage.data, samplePDF) {
		t.Fatalf("stored bytes differ from response")
	}
	if !strings.HasPrefix(storage.key, "processed-compress-") || !strings.HasSuffix(storage.key, ".pdf") {
		t.Fatalf("unexpected generated key %q", storage.key)
	}
	if ref.Name != storage.key {
		t.Fatalf("ref does not point at stored file: %+v", ref)
	}
}

func TestProcessRequiresDocumentedResultField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","download":"https://files.example/x.pdf"}`))
	}))
	defer server.Close()

	strict := NewWithOptions(server.URL, Options{Contract: mustContract(t)})
	_, err := strict.Process(context.Background(), domain.ProcessRequest{Mode: domain.ModeOCR, PDF: samplePDF})
	if !domain.IsKind(err, domain.ErrTransport) {
		t.Fatalf("expected transport error without documented field, got %v", err)
	}

	lenient := NewWithOptions(server.URL, Options{Contract: mustContract(t), URIScan: true})
	ref, err := lenient.Process(context.Background(), domain.ProcessRequest{Mode: domain.ModeOCR, PDF: samplePDF})
	if err != nil {
		t.Fatalf("Process() with URI scan error = %v", err)
	}
	if ref.URI != "https://files.example/x.pdf" {
		t.Fatalf("unexpected fallback ref %+v", ref)
	}
}

func TestProcessRejectsResponseViolatingContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processedPdfUri":42}`))
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, Options{Contract: mustContract(t)})
	_, err := client.Process(context.Background(), domain.ProcessRequest{Mode: domain.ModeCompress, PDF: samplePDF})
	if !domain.IsKind(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.Contains(domain.UserMessage(err), "contract") {
		t.Fatalf("unexpected message %q", domain.UserMessage(err))
	}
}

func TestContractRejectsOutOfRangeCoordinates(t *testing.T) {
	contract := mustContract(t)
	body := []byte(`{"pdf":"AAAA","redactions":[{"page":1,"x":1.5,"y":0,"width":0.1,"height":0.1}]}`)
	if err := contract.ValidateRequest(domain.ModeRedact, body); err == nil {
		t.Fatalf("expected contract violation for x=1.5")
	}
	ok := []byte(`{"pdf":"AAAA","redactions":[{"page":1,"x":0.5,"y":0,"width":0.1,"height":0.1,"fillColor":"#000000"}]}`)
	if err := contract.ValidateRequest(domain.ModeRedact, ok); err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
}

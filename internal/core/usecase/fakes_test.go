package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

var samplePDF = []byte("%PDF-1.4 sample")

type sourceFake struct {
	data  []byte
	err   error
	calls int
}

func (f *sourceFake) Load(context.Context, domain.DocumentRef) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type inspectorFake struct {
	info domain.DocumentInfo
}

func (f *inspectorFake) Inspect(_ context.Context, data []byte) (domain.DocumentInfo, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return domain.DocumentInfo{}, domain.NewError(domain.ErrSelection, domain.MsgNotPDF)
	}
	return f.info, nil
}

type storageFake struct {
	saved map[string][]byte
	err   error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (domain.DocumentRef, error) {
	if f.err != nil {
		return domain.DocumentRef{}, f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[key] = raw
	return domain.DocumentRef{URI: "file:///store/" + key, Name: key}, nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.saved[key]
	if !ok {
		return nil, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type transportFake struct {
	ref      domain.DocumentRef
	err      error
	requests []domain.ProcessRequest
	block    chan struct{}
	entered  chan struct{}
}

func (f *transportFake) Process(_ context.Context, req domain.ProcessRequest) (domain.DocumentRef, error) {
	f.requests = append(f.requests, req)
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return domain.DocumentRef{}, f.err
	}
	return f.ref, nil
}

type recorderFake struct {
	mu   sync.Mutex
	runs []domain.ProcessingRun
	err  error
}

func (f *recorderFake) RecordRun(_ context.Context, run domain.ProcessingRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

func (f *recorderFake) ListRuns(_ context.Context, sessionID string, _ int) ([]domain.ProcessingRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ProcessingRun, 0)
	for _, r := range f.runs {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

type publisherFake struct {
	events []domain.DocumentProcessedEvent
	err    error
}

func (f *publisherFake) PublishDocumentProcessed(_ context.Context, ev domain.DocumentProcessedEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type observerFake struct {
	started  int
	finished []error
	entities []int
}

func (f *observerFake) StartProcess(domain.Mode) {
	f.started++
}

func (f *observerFake) FinishProcess(_ domain.Mode, entityCount int, _ time.Duration, err error) {
	f.finished = append(f.finished, err)
	f.entities = append(f.entities, entityCount)
}

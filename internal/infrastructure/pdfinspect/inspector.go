package pdfinspect

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

var pdfHeader = []byte("%PDF-")

// maxInheritDepth bounds the walk up the page tree when resolving an
// inherited MediaBox.
const maxInheritDepth = 32

// Inspector is a ports.DocumentInspector backed by a pure-Go PDF parser.
type Inspector struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{logger: logger}
}

// Inspect rejects anything that is not a parseable PDF and reports the page
// count. Page sizes are best effort; pages without a readable MediaBox are
// omitted.
func (i *Inspector) Inspect(ctx context.Context, data []byte) (info domain.DocumentInfo, err error) {
	if err := ctx.Err(); err != nil {
		return domain.DocumentInfo{}, err
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\r\n\t "), pdfHeader) {
		return domain.DocumentInfo{}, domain.NewError(domain.ErrSelection, domain.MsgNotPDF)
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn("pdf_inspect_panic", "panic", fmt.Sprint(r))
			info = domain.DocumentInfo{}
			err = &domain.Error{Kind: domain.ErrSelection, Message: domain.MsgNotPDF, Err: fmt.Errorf("parse pdf: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.DocumentInfo{}, &domain.Error{Kind: domain.ErrSelection, Message: domain.MsgNotPDF, Err: err}
	}

	pages := reader.NumPage()
	if pages < 1 {
		return domain.DocumentInfo{}, domain.NewError(domain.ErrSelection, "selected PDF has no pages")
	}

	info = domain.DocumentInfo{Pages: pages}
	for n := 1; n <= pages; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		w, h, ok := mediaBox(page.V)
		if !ok {
			continue
		}
		info.PageSizes = append(info.PageSizes, domain.PageSize{Number: n, Width: w, Height: h})
	}
	return info, nil
}

func mediaBox(page pdf.Value) (float64, float64, bool) {
	node := page
	for depth := 0; depth < maxInheritDepth && !node.IsNull(); depth++ {
		box := node.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w < 0 {
				w = -w
			}
			if h < 0 {
				h = -h
			}
			if w == 0 || h == 0 {
				return 0, 0, false
			}
			return w, h, true
		}
		node = node.Key("Parent")
	}
	return 0, 0, false
}

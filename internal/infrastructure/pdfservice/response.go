package pdfservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

var pdfMagic = []byte("%PDF-")

// resolveResult turns a success response into a document reference. Binary
// PDFs are persisted; JSON must name the result in processedPdfUri or
// resultUri.
func (c *Client) resolveResult(ctx context.Context, mode domain.Mode, resp rawResponse) (domain.DocumentRef, error) {
	if isBinaryPDF(resp) {
		return c.persistBinary(ctx, mode, resp.Body)
	}

	var decoded any
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return domain.DocumentRef{}, &domain.Error{
			Kind:    domain.ErrTransport,
			Message: "processing service returned an unreadable response",
			Err:     err,
		}
	}
	if c.contract != nil {
		if err := c.contract.ValidateResult(decoded); err != nil {
			return domain.DocumentRef{}, &domain.Error{
				Kind:    domain.ErrTransport,
				Message: "processing service response does not match its contract",
				Err:     err,
			}
		}
	}

	fields, _ := decoded.(map[string]any)
	for _, key := range []string{"processedPdfUri", "resultUri"} {
		if uri, ok := fields[key].(string); ok && strings.TrimSpace(uri) != "" {
			return domain.DocumentRef{URI: strings.TrimSpace(uri), Name: nameFromURI(uri)}, nil
		}
	}

	if c.uriScan {
		if key, uri, ok := scanForURI(fields); ok {
			slog.Warn("result_uri_fallback", "mode", mode.String(), "key", key)
			return domain.DocumentRef{URI: uri, Name: nameFromURI(uri)}, nil
		}
	}

	return domain.DocumentRef{}, domain.NewError(domain.ErrTransport, "response did not contain a processed document reference")
}

func (c *Client) persistBinary(ctx context.Context, mode domain.Mode, data []byte) (domain.DocumentRef, error) {
	if c.storage == nil {
		return domain.DocumentRef{}, domain.NewError(domain.ErrTransport, "received a document but no result storage is configured")
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\r\n\t "), pdfMagic) {
		return domain.DocumentRef{}, domain.NewError(domain.ErrTransport, "processing service returned a non-PDF document")
	}

	key := fmt.Sprintf("processed-%s-%s.pdf", mode, uuid.NewString())
	ref, err := c.storage.Save(ctx, key, bytes.NewReader(data))
	if err != nil {
		return domain.DocumentRef{}, &domain.Error{
			Kind:    domain.ErrTransport,
			Message: "could not store processed document",
			Err:     err,
		}
	}
	return ref, nil
}

func isBinaryPDF(resp rawResponse) bool {
	mediaType, _, err := mime.ParseMediaType(resp.ContentType)
	if err == nil {
		switch mediaType {
		case "application/pdf", "application/octet-stream":
			return true
		case "application/json":
			return false
		}
	}
	return bytes.HasPrefix(resp.Body, pdfMagic)
}

// scanForURI looks for any string field holding an http(s) or file URI. Keys
// are visited in sorted order so the choice is stable.
func scanForURI(fields map[string]any) (string, string, bool) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s, ok := fields[k].(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(s, "http") || strings.HasPrefix(s, "file:") {
			return k, s, true
		}
	}
	return "", "", false
}

func nameFromURI(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

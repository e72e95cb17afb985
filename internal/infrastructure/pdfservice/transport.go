package pdfservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodyBytes = 64 << 10

type rawResponse struct {
	ContentType string
	Body        []byte
}

func (c *Client) post(ctx context.Context, path string, body []byte, operation string) (rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return rawResponse{}, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rawResponse{}, fmt.Errorf("pdfservice %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rawResponse{}, c.statusError(operation, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResultBytes+1))
	if err != nil {
		return rawResponse{}, fmt.Errorf("read %s response: %w", operation, err)
	}
	if int64(len(data)) > c.maxResultBytes {
		return rawResponse{}, fmt.Errorf("%s response exceeds %d bytes", operation, c.maxResultBytes)
	}
	return rawResponse{ContentType: resp.Header.Get("Content-Type"), Body: data}, nil
}

// statusError reads the failure body as JSON first and falls back to plain
// text.
func (c *Client) statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    c.failureMessage(body, resp.StatusCode),
	}
}

func (c *Client) failureMessage(body []byte, statusCode int) string {
	fallback := fmt.Sprintf("request failed with status %d", statusCode)

	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		switch v := decoded.(type) {
		case string:
			if msg := strings.TrimSpace(v); msg != "" {
				return msg
			}
		case map[string]any:
			if c.contract != nil && c.contract.ValidateFailure(v) != nil {
				return fallback
			}
			for _, key := range []string{"message", "error"} {
				if msg, ok := v[key].(string); ok && strings.TrimSpace(msg) != "" {
					return strings.TrimSpace(msg)
				}
			}
		}
		return fallback
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return fallback
}

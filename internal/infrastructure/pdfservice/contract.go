package pdfservice

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

//go:embed contract.yaml
var contractYAML []byte

// Contract is the documented request/response schema of the processing
// service. Responses that do not match it are rejected instead of guessed at.
type Contract struct {
	requests map[domain.Mode]*openapi3.Schema
	result   *openapi3.Schema
	failure  *openapi3.Schema
}

func LoadContract() (*Contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(contractYAML)
	if err != nil {
		return nil, fmt.Errorf("load service contract: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate service contract: %w", err)
	}

	schema := func(name string) (*openapi3.Schema, error) {
		ref, ok := doc.Components.Schemas[name]
		if !ok || ref == nil || ref.Value == nil {
			return nil, fmt.Errorf("service contract: schema %s missing", name)
		}
		return ref.Value, nil
	}

	byMode := map[domain.Mode]string{
		domain.ModeCrop:      "CropRequest",
		domain.ModeAnnotate:  "AnnotateRequest",
		domain.ModeRedact:    "RedactRequest",
		domain.ModeCompress:  "DocumentRequest",
		domain.ModeOCR:       "DocumentRequest",
		domain.ModeWatermark: "WatermarkRequest",
	}
	c := &Contract{requests: make(map[domain.Mode]*openapi3.Schema, len(byMode))}
	for mode, name := range byMode {
		s, err := schema(name)
		if err != nil {
			return nil, err
		}
		c.requests[mode] = s
	}
	if c.result, err = schema("ProcessResult"); err != nil {
		return nil, err
	}
	if c.failure, err = schema("ErrorBody"); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateRequest checks an encoded request body for mode.
func (c *Contract) ValidateRequest(mode domain.Mode, body []byte) error {
	s, ok := c.requests[mode]
	if !ok {
		return fmt.Errorf("service contract: no request schema for mode %s", mode)
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return fmt.Errorf("decode %s request: %w", mode, err)
	}
	if err := s.VisitJSON(value); err != nil {
		return fmt.Errorf("%s request violates service contract: %w", mode, err)
	}
	return nil
}

// ValidateResult checks a decoded success response.
func (c *Contract) ValidateResult(value any) error {
	return c.result.VisitJSON(value)
}

// ValidateFailure checks a decoded error response.
func (c *Contract) ValidateFailure(value any) error {
	return c.failure.VisitJSON(value)
}

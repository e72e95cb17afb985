package pdfservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/ports"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/resilience"
)

const defaultMaxResultBytes = 200 << 20

type Options struct {
	// Timeout bounds one attempt, including reading the result.
	Timeout time.Duration
	// TrailingSlash posts to /pdf/<op>/ instead of /pdf/<op>.
	TrailingSlash bool
	// URIScan accepts any URI-shaped string field when neither documented
	// result field is present.
	URIScan        bool
	MaxResultBytes int64
	Defaults       PayloadDefaults

	ResilienceExecutor *resilience.Executor
	Storage            ports.ObjectStorage
	Contract           *Contract
	HTTPClient         *http.Client
}

// Client is the HTTP implementation of ports.DocumentTransport.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	executor       *resilience.Executor
	storage        ports.ObjectStorage
	contract       *Contract
	defaults       PayloadDefaults
	trailingSlash  bool
	uriScan        bool
	maxResultBytes int64
}

func New(baseURL string) *Client {
	return NewWithOptions(baseURL, Options{})
}

func NewWithOptions(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxResult := options.MaxResultBytes
	if maxResult <= 0 {
		maxResult = defaultMaxResultBytes
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     httpClient,
		executor:       options.ResilienceExecutor,
		storage:        options.Storage,
		contract:       options.Contract,
		defaults:       options.Defaults.normalize(),
		trailingSlash:  options.TrailingSlash,
		uriScan:        options.URIScan,
		maxResultBytes: maxResult,
	}
}

func (c *Client) Process(ctx context.Context, req domain.ProcessRequest) (domain.DocumentRef, error) {
	if err := req.Validate(); err != nil {
		return domain.DocumentRef{}, err
	}

	payload, err := buildPayload(req, c.defaults)
	if err != nil {
		return domain.DocumentRef{}, fmt.Errorf("build %s payload: %w", req.Mode, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.DocumentRef{}, fmt.Errorf("marshal %s request: %w", req.Mode, err)
	}
	if c.contract != nil {
		if err := c.contract.ValidateRequest(req.Mode, body); err != nil {
			return domain.DocumentRef{}, domain.WrapError(domain.ErrInvalidInput, "process "+req.Mode.String(), err)
		}
	}

	operation := "pdfservice." + req.Mode.String()
	path := c.endpoint(req.Mode)

	var resp rawResponse
	call := func(callCtx context.Context) error {
		r, err := c.post(callCtx, path, body, req.Mode.String())
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyServiceError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.DocumentRef{}, toTransportError(operation, err)
	}

	return c.resolveResult(ctx, req.Mode, resp)
}

func (c *Client) endpoint(mode domain.Mode) string {
	path := "/pdf/" + mode.String()
	if c.trailingSlash {
		path += "/"
	}
	return path
}

package docsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

const defaultMaxBytes = 200 << 20

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxBytes   int64
	// Policy restricts the locations Load accepts. Nil allows any location.
	Policy *Policy
}

// Loader reads documents named by local paths, file:// URIs or http(s) URLs.
type Loader struct {
	httpClient *http.Client
	maxBytes   int64
	policy     *Policy
}

func New(options Options) *Loader {
	client := options.HTTPClient
	if client == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := options.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	policy := options.Policy
	if policy != nil {
		policy = policy.resolved()
		guarded := *client
		guarded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if !policy.allowsHost(req.URL) {
				return errLocationNotAllowed
			}
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		}
		client = &guarded
	}
	return &Loader{httpClient: client, maxBytes: maxBytes, policy: policy}
}

func (l *Loader) Load(ctx context.Context, ref domain.DocumentRef) ([]byte, error) {
	loc, err := parseLocation(ref.URI)
	if err != nil {
		return nil, err
	}
	if l.policy != nil && !l.policy.allows(loc) {
		return nil, notAllowed(errLocationNotAllowed)
	}
	if loc.remote != nil {
		return l.download(ctx, loc.remote.String())
	}
	return l.readFile(loc.path)
}

// location is either a local path or a remote http(s) URL.
type location struct {
	path   string
	remote *url.URL
}

func parseLocation(raw string) (location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return location{}, domain.NewError(domain.ErrSelection, domain.MsgNoDocument)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare paths, including Windows drive letters.
		return location{path: raw}, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return location{path: filepath.FromSlash(u.Path)}, nil
	case "http", "https":
		return location{remote: u}, nil
	default:
		return location{}, domain.NewError(domain.ErrInvalidInput, fmt.Sprintf("unsupported document location %q", u.Scheme))
	}
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.Error{Kind: domain.ErrNotFound, Message: "document no longer exists", Err: err}
		}
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return l.readLimited(f)
}

func (l *Loader) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf, application/octet-stream")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, errLocationNotAllowed) {
			return nil, notAllowed(err)
		}
		return nil, &domain.Error{Kind: domain.ErrTransport, Message: "could not download document", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := domain.ErrTransport
		if resp.StatusCode == http.StatusNotFound {
			kind = domain.ErrNotFound
		}
		return nil, domain.NewError(kind, fmt.Sprintf("could not download document (status %d)", resp.StatusCode))
	}
	return l.readLimited(resp.Body)
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, domain.NewError(domain.ErrInvalidInput, fmt.Sprintf("document exceeds %d bytes", l.maxBytes))
	}
	return data, nil
}

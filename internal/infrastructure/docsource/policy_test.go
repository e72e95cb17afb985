package docsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/storage/localfs"
)

func TestPolicyAllowsPathsUnderRoots(t *testing.T) {
	path := writeSample(t)
	loader := New(Options{Policy: &Policy{Roots: []string{filepath.Dir(path)}}})

	for _, uri := range []string{path, localfs.FileURI(path)} {
		data, err := loader.Load(context.Background(), domain.DocumentRef{URI: uri})
		if err != nil {
			t.Fatalf("Load(%q) error = %v", uri, err)
		}
		if string(data) != "%PDF-1.4 sample" {
			t.Fatalf("Load(%q) unexpected content %q", uri, data)
		}
	}
}

func TestPolicyRejectsPathsOutsideRoots(t *testing.T) {
	root := t.TempDir()
	outside := writeSample(t)
	loader := New(Options{Policy: &Policy{Roots: []string{root}}})

	uris := []string{
		"/etc/passwd",
		"file:///etc/passwd",
		filepath.Join(root, "..", "..", "etc", "passwd"),
		outside,
		"/no/such/file.pdf",
	}
	for _, uri := range uris {
		_, err := loader.Load(context.Background(), domain.DocumentRef{URI: uri})
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Load(%q): expected invalid input, got %v", uri, err)
		}
		if got := domain.UserMessage(err); got != errLocationNotAllowed.Error() {
			t.Fatalf("Load(%q): expected %q, got %q", uri, errLocationNotAllowed.Error(), got)
		}
	}
}

func TestPolicyRejectsSymlinkLeavingRoot(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "escape.pdf")
	if err := os.Symlink(writeSample(t), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	loader := New(Options{Policy: &Policy{Roots: []string{root}}})

	if _, err := loader.Load(context.Background(), domain.DocumentRef{URI: link}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for symlink escape, got %v", err)
	}
}

func TestPolicyMissingFileInsideRootIsNotFound(t *testing.T) {
	root := t.TempDir()
	loader := New(Options{Policy: &Policy{Roots: []string{root}}})

	_, err := loader.Load(context.Background(), domain.DocumentRef{URI: filepath.Join(root, "gone.pdf")})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPolicyChecksHosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7 remote"))
	}))
	defer server.Close()
	host := mustHost(t, server.URL)

	allowed := New(Options{HTTPClient: server.Client(), Policy: &Policy{Hosts: []string{host}}})
	if _, err := allowed.Load(context.Background(), domain.DocumentRef{URI: server.URL + "/doc.pdf"}); err != nil {
		t.Fatalf("expected allowed host to load, got %v", err)
	}

	denied := New(Options{HTTPClient: server.Client(), Policy: &Policy{Hosts: []string{"docs.example.com"}}})
	if _, err := denied.Load(context.Background(), domain.DocumentRef{URI: server.URL + "/doc.pdf"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unlisted host, got %v", err)
	}
}

func TestPolicyRejectsRedirectToUnlistedHost(t *testing.T) {
	var hits int
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("%PDF-1.7 internal"))
	}))
	defer target.Close()
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/secret.pdf", http.StatusFound)
	}))
	defer front.Close()

	loader := New(Options{HTTPClient: front.Client(), Policy: &Policy{Hosts: []string{mustHost(t, front.URL)}}})
	_, err := loader.Load(context.Background(), domain.DocumentRef{URI: front.URL + "/doc.pdf"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for redirect, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("expected redirect target untouched, got %d hits", hits)
	}
}

func TestUnrestrictedLoaderFollowsRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7 moved"))
	}))
	defer target.Close()
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/doc.pdf", http.StatusFound)
	}))
	defer front.Close()

	data, err := New(Options{HTTPClient: front.Client()}).Load(context.Background(), domain.DocumentRef{URI: front.URL})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(data) != "%PDF-1.7 moved" {
		t.Fatalf("unexpected content %q", data)
	}
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Host
}

package docsource

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

var errLocationNotAllowed = errors.New("document location is not allowed")

// Policy limits where documents may be read from. Local paths must resolve
// inside one of Roots; remote URLs must name one of Hosts, either as
// "host" or "host:port". Redirects are held to the same hosts.
type Policy struct {
	Roots []string
	Hosts []string
}

func (p *Policy) resolved() *Policy {
	out := &Policy{Hosts: make([]string, 0, len(p.Hosts))}
	for _, root := range p.Roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		if abs, ok := canonical(root); ok {
			out.Roots = append(out.Roots, abs)
		}
	}
	for _, host := range p.Hosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			out.Hosts = append(out.Hosts, host)
		}
	}
	return out
}

func (p *Policy) allows(loc location) bool {
	if loc.remote != nil {
		return p.allowsHost(loc.remote)
	}
	path, ok := canonical(loc.path)
	if !ok {
		return false
	}
	for _, root := range p.Roots {
		if within(root, path) {
			return true
		}
	}
	return false
}

func (p *Policy) allowsHost(u *url.URL) bool {
	host := strings.ToLower(u.Host)
	name := strings.ToLower(u.Hostname())
	for _, allowed := range p.Hosts {
		if allowed == host || allowed == name {
			return true
		}
	}
	return false
}

// canonical returns the absolute form of path with symlinks resolved up to
// its deepest existing ancestor.
func canonical(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rest := ""
	for dir := abs; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, true
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func notAllowed(err error) error {
	return &domain.Error{Kind: domain.ErrInvalidInput, Message: errLocationNotAllowed.Error(), Err: err}
}

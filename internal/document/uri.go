package document

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/niivue/niiview/internal/fsext"
)

// ErrUnsupportedScheme is returned for locators the host can't read.
var ErrUnsupportedScheme = errors.New("unsupported resource scheme")

// URI identifies a resource. Two URIs refer to the same resource exactly when
// their String forms are equal.
type URI struct {
	path string
}

// ParseURI turns a locator into an URI. It accepts file:// URIs and plain
// paths; relative paths are resolved against base.
func ParseURI(base, s string) (URI, error) {
	if s == "" {
		return URI{}, errors.New("empty resource locator")
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return URI{}, fmt.Errorf("invalid resource locator %q: %w", s, err)
		}
		if u.Scheme != "file" {
			return URI{}, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
		}
		if u.Host != "" && u.Host != "localhost" {
			return URI{}, fmt.Errorf("%w: remote host %q", ErrUnsupportedScheme, u.Host)
		}
		return URI{path: filepath.Clean(filepath.FromSlash(u.Path))}, nil
	}
	return URI{path: fsext.Abs(base, s)}, nil
}

// MustParseURI is like ParseURI but panics on error.
func MustParseURI(base, s string) URI {
	u, err := ParseURI(base, s)
	if err != nil {
		panic(err)
	}
	return u
}

// Path is the file system path of the resource.
func (u URI) Path() string {
	return u.path
}

// Name is the last element of the path, empty for the root and the zero URI.
func (u URI) Name() string {
	name := path.Base(filepath.ToSlash(u.path))
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// String is the canonical file:// form.
func (u URI) String() string {
	p := filepath.ToSlash(u.path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // windows volumes
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

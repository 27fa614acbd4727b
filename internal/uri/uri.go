// Package uri parses and formats the locator strings used throughout
// buildweaver to name targets and dependencies.
//
// A URI is {scheme, netloc, path, params, query, fragment}. The shape follows
// RFC 3986 generic syntax with one addition: a ";"-delimited params segment
// trailing the path, in the style of the original tool this engine descends
// from. net/url does not expose a params field, so parsing is done by hand.
package uri

import (
	"fmt"
	"strings"
)

// URI is a parsed locator.
type URI struct {
	Scheme   string
	Netloc   string
	Path     string
	Params   string
	Query    string
	Fragment string
}

// DefaultScheme is used when a locator string carries no "scheme://" prefix.
const DefaultScheme = "file"

// LocalNetloc is the only netloc value the file scheme accepts.
const LocalNetloc = "localhost"

// Parse parses s into a URI.
//
// Scheme defaults to "file" when absent. For the file scheme, netloc
// defaults to "localhost" and any other value is rejected.
func Parse(s string) (URI, error) {
	rest := s
	scheme := DefaultScheme
	netloc := ""

	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme = rest[:idx]
		rest = rest[idx+3:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			netloc = rest[:slash]
			rest = rest[slash:]
		} else {
			netloc = rest
			rest = ""
		}
	}

	var fragment string
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		fragment = rest[idx+1:]
		rest = rest[:idx]
	}

	var query string
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		query = rest[idx+1:]
		rest = rest[:idx]
	}

	var params string
	if idx := strings.IndexByte(rest, ';'); idx >= 0 {
		params = rest[idx+1:]
		rest = rest[:idx]
	}

	path := rest

	if scheme == "file" {
		if netloc == "" {
			netloc = LocalNetloc
		} else if netloc != LocalNetloc {
			return URI{}, fmt.Errorf("uri: file scheme requires netloc %q, got %q in %q", LocalNetloc, netloc, s)
		}
	}

	return URI{
		Scheme:   scheme,
		Netloc:   netloc,
		Path:     path,
		Params:   params,
		Query:    query,
		Fragment: fragment,
	}, nil
}

// MustParse is Parse, panicking on error. Intended for declarations where the
// locator is a compile-time constant.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// String reconstructs the original locator form.
func (u URI) String() string {
	var b strings.Builder
	if u.Scheme != DefaultScheme || u.Netloc != LocalNetloc {
		b.WriteString(u.Scheme)
		b.WriteString("://")
		b.WriteString(u.Netloc)
	}
	b.WriteString(u.Path)
	if u.Params != "" {
		b.WriteByte(';')
		b.WriteString(u.Params)
	}
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// IsLocalFile reports whether u addresses the local filesystem.
func (u URI) IsLocalFile() bool {
	return u.Scheme == DefaultScheme
}

/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package mapping

import (
	"fmt"
	"net/url"
	"strings"
)

// SourceKind is the kind of place a package was obtained from.
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceRegistry
	SourceSparse
	SourceGit
	SourcePath
	SourceLocalRegistry
	SourceDirectory
)

var sourceKindPrefixes = map[string]SourceKind{
	"registry":       SourceRegistry,
	"sparse":         SourceSparse,
	"git":            SourceGit,
	"path":           SourcePath,
	"local-registry": SourceLocalRegistry,
	"directory":      SourceDirectory,
}

func (k SourceKind) String() string {
	for prefix, kind := range sourceKindPrefixes {
		if kind == k {
			return prefix
		}
	}
	return "unknown"
}

// Source is the provenance tag of a package, e.g.
// "registry+https://github.com/rust-lang/crates.io-index" or
// "git+https://github.com/org/repo?branch=main#0123abcd".
type Source struct {
	Kind SourceKind
	URL  string
	// Query holds git reference selectors (branch, tag, rev).
	Query string
	// Precise is the locked git commit, if any.
	Precise string
}

// ParseSource parses a cargo source string. Workspace members have no
// source; an empty string yields the zero Source.
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, nil
	}

	prefix, rest, found := strings.Cut(raw, "+")
	if !found {
		return Source{}, fmt.Errorf("source %q: missing kind prefix", raw)
	}
	kind, known := sourceKindPrefixes[prefix]
	if !known {
		return Source{}, fmt.Errorf("source %q: unknown kind %q", raw, prefix)
	}

	src := Source{Kind: kind, URL: rest}
	if kind == SourceGit {
		src.URL, src.Precise, _ = strings.Cut(src.URL, "#")
		src.URL, src.Query, _ = strings.Cut(src.URL, "?")
	}
	return src, nil
}

// IsZero reports whether the source is absent (a local workspace member).
func (s Source) IsZero() bool {
	return s == Source{}
}

func (s Source) String() string {
	if s.IsZero() {
		return ""
	}
	out := s.Kind.String() + "+" + s.URL
	if s.Query != "" {
		out += "?" + s.Query
	}
	if s.Precise != "" {
		out += "#" + s.Precise
	}
	return out
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Normalized returns a copy of s whose URL has a lowercase scheme and host
// and no trailing "/" or ".git". Two metadata providers may disagree on these
// details for the same repository.
func (s Source) Normalized() Source {
	u, err := url.Parse(s.URL)
	if err != nil {
		return s
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), ".git")
	s.URL = u.String()
	return s
}

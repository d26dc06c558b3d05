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
// Package semver wraps github.com/Masterminds/semver/v3 with Cargo's
// requirement dialect.
//
// Cargo treats a bare version ("1.2.3") as a caret requirement ("^1.2.3") and
// separates comparators with commas. Masterminds treats a bare version as an
// exact match, so Cargo requirements are rewritten before parsing.
package semver

import (
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a semantic version.
type Version struct {
	v *mm.Version
}

// Requirement is a Cargo version requirement such as "^1.0", "~1.4",
// ">=1.2, <2" or "*".
type Requirement struct {
	raw string
	c   *mm.Constraints
}

func ParseVersion(raw string) (Version, error) {
	v, err := mm.StrictNewVersion(strings.TrimSpace(raw))
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as it was parsed.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return v.v == nil
}

// Equal reports whether a and b denote the same version, build metadata included.
func (v Version) Equal(o Version) bool {
	if v.v == nil || o.v == nil {
		return v.v == o.v
	}
	return v.v.Equal(o.v) && v.v.Metadata() == o.v.Metadata()
}

// ParseRequirement parses a Cargo requirement. An empty string is "*".
func ParseRequirement(raw string) (Requirement, error) {
	translated := translate(raw)
	c, err := mm.NewConstraint(translated)
	if err != nil {
		return Requirement{}, fmt.Errorf("semver: parse requirement %q: %w", raw, err)
	}
	return Requirement{raw: strings.TrimSpace(raw), c: c}, nil
}

func MustParseRequirement(raw string) Requirement {
	r, err := ParseRequirement(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the requirement as written in the manifest.
func (r Requirement) String() string {
	if r.raw == "" {
		return "*"
	}
	return r.raw
}

// Matches reports whether v satisfies r. Unparsed values never match.
func (r Requirement) Matches(v Version) bool {
	if v.v == nil || r.c == nil {
		return false
	}
	return r.c.Check(v.v)
}

func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Requirement) UnmarshalText(text []byte) error {
	parsed, err := ParseRequirement(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// translate rewrites a Cargo requirement into Masterminds syntax: comparators
// without an operator gain a caret.
func translate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "*"
	}

	var comparators []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case part == "*" || startsWithOperator(part):
			comparators = append(comparators, part)
		default:
			comparators = append(comparators, "^"+part)
		}
	}
	if len(comparators) == 0 {
		return "*"
	}
	return strings.Join(comparators, ", ")
}

func startsWithOperator(comparator string) bool {
	switch comparator[0] {
	case '^', '~', '=', '<', '>', '!':
		return true
	}
	return false
}

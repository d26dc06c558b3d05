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
// Package policy decides which declared dependencies are admitted into the
// dependency graph.
package policy

import (
	"bennypowers.dev/crateaudit/metadata"
	"bennypowers.dev/crateaudit/platform"
)

// ExtraDeps selects which dependency kinds beyond normal ones are followed.
type ExtraDeps int

const (
	// Build follows normal and build dependencies. It is the default.
	Build ExtraDeps = iota
	// NoMore follows normal dependencies only.
	NoMore
	// Dev follows normal, build and development dependencies.
	Dev
	// All follows every dependency kind, including unrecognised ones.
	All
)

func (e ExtraDeps) String() string {
	switch e {
	case NoMore:
		return "no-more"
	case Dev:
		return "dev"
	case All:
		return "all"
	default:
		return "build"
	}
}

// ExtraDepsFromFlags resolves the mutually exclusive command line flags.
// The first set flag in the order all, no-deps, dev-deps wins.
func ExtraDepsFromFlags(allDeps, noDeps, devDeps bool) ExtraDeps {
	switch {
	case allDeps:
		return All
	case noDeps:
		return NoMore
	case devDeps:
		return Dev
	default:
		return Build
	}
}

// Allows reports whether a dependency of the given kind is followed.
func (e ExtraDeps) Allows(kind metadata.DependencyKind) bool {
	switch {
	case kind == metadata.KindNormal:
		return true
	case e == All:
		return true
	case kind == metadata.KindBuild:
		return e == Build || e == Dev
	case kind == metadata.KindDevelopment:
		return e == Dev
	default:
		return false
	}
}

// TargetFor returns the triple platform restrictions are evaluated against:
// empty in all-targets mode, otherwise the requested triple or the host.
func TargetFor(allTargets bool, requested, host string) string {
	if allTargets {
		return ""
	}
	if requested != "" {
		return requested
	}
	return host
}

// Policy combines the dependency-kind axis with the platform axis.
type Policy struct {
	ExtraDeps ExtraDeps

	// Platform evaluates platform-restricted dependencies. Nil admits every
	// platform (all-targets mode). A matcher whose target has no cfgs
	// rejects every platform-restricted dependency.
	Platform *platform.Matcher
}

// Admits reports whether the declared dependency produces a graph edge.
func (p Policy) Admits(dep metadata.Dependency) bool {
	if !p.ExtraDeps.Allows(dep.Kind) {
		return false
	}
	return p.admitsPlatform(dep.Target)
}

func (p Policy) admitsPlatform(restriction string) bool {
	if restriction == "" || p.Platform == nil {
		return true
	}
	target := p.Platform.Target()
	if target.Triple == "" || target.Cfgs == nil {
		return false
	}
	return p.Platform.Matches(restriction)
}

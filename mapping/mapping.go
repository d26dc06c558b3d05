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
// Package mapping reconciles package identities between the cargo metadata
// package list and crateaudit's structural PackageID.
//
// Exact identity (metadata.PackageID equality) is what the dependency graph
// deduplicates on. The looser match used here compares only name and
// version, so a dependency declared against one source still reconciles with
// a package whose source string was recorded differently.
package mapping

import (
	"log/slog"

	"bennypowers.dev/crateaudit/internal/logging"
	"bennypowers.dev/crateaudit/internal/semver"
	"bennypowers.dev/crateaudit/metadata"
)

// PackageID identifies a package by name, version and provenance.
type PackageID struct {
	Name    string         `json:"name"`
	Version semver.Version `json:"version"`
	Source  Source         `json:"source"`
}

func (id PackageID) String() string {
	if id.Source.IsZero() {
		return id.Name + " " + id.Version.String()
	}
	return id.Name + " " + id.Version.String() + " (" + id.Source.String() + ")"
}

// Krate is a catalog entry.
type Krate struct {
	ID      metadata.PackageID
	Name    string
	Version semver.Version
	Source  string
}

// Catalog indexes every package of a metadata document by exact id.
type Catalog struct {
	krates []Krate
	byID   map[metadata.PackageID]int
	logger *slog.Logger
}

// NewCatalog builds a catalog from md. A nil logger discards diagnostics.
func NewCatalog(md *metadata.Metadata, logger *slog.Logger) *Catalog {
	c := &Catalog{
		krates: make([]Krate, 0, len(md.Packages)),
		byID:   make(map[metadata.PackageID]int, len(md.Packages)),
		logger: logging.OrDiscard(logger),
	}
	for _, pkg := range md.Packages {
		c.byID[pkg.ID] = len(c.krates)
		c.krates = append(c.krates, Krate{
			ID:      pkg.ID,
			Name:    pkg.Name,
			Version: pkg.Version,
			Source:  pkg.Source,
		})
	}
	return c
}

// Len returns the number of packages in the catalog.
func (c *Catalog) Len() int {
	return len(c.krates)
}

// NodeFor returns the catalog entry with exactly the given id.
func (c *Catalog) NodeFor(id metadata.PackageID) (Krate, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Krate{}, false
	}
	return c.krates[i], true
}

// NameAndVersion returns the name and version behind id. Ids absent from the
// catalog fall back to parsing the id string itself.
func (c *Catalog) NameAndVersion(id metadata.PackageID) (string, semver.Version, bool) {
	if k, ok := c.NodeFor(id); ok {
		return k.Name, k.Version, true
	}
	name, version, _, ok := id.Parts()
	return name, version, ok
}

// MatchesIgnoringSource reports whether the package id denotes the package
// dep asks for: same name and a version satisfying the requirement. The
// sources are never compared.
//
// ok is false when the candidate's name and version cannot be determined or
// the requirement does not parse; callers treat that as no match.
func (c *Catalog) MatchesIgnoringSource(dep metadata.Dependency, id metadata.PackageID) (match bool, ok bool) {
	name, version, found := c.NameAndVersion(id)
	if !found {
		c.logger.Warn("failed to match package ignoring source",
			"dependency", dep.Name, "requirement", dep.Req, "candidate", id)
		return false, false
	}
	req, err := dep.Requirement()
	if err != nil {
		c.logger.Warn("failed to parse dependency requirement",
			"dependency", dep.Name, "requirement", dep.Req, "error", err)
		return false, false
	}
	return name == dep.Name && req.Matches(version), true
}

// ToPackageID translates a metadata package id into a structural PackageID.
func ToPackageID(md *metadata.Metadata, id metadata.PackageID, logger *slog.Logger) (PackageID, bool) {
	pkg, ok := md.Package(id)
	if !ok {
		logging.OrDiscard(logger).Warn("failed to convert package id to package", "package", id)
		return PackageID{}, false
	}
	src, err := ParseSource(pkg.Source)
	if err != nil {
		logging.OrDiscard(logger).Debug("unrecognised package source", "package", id, "error", err)
		src = Source{}
	}
	return PackageID{Name: pkg.Name, Version: pkg.Version, Source: src}, true
}

// ToMetadataPackageID finds the metadata package id for a structural
// PackageID by name and version. When several packages share name and
// version, the one whose normalized source agrees wins; otherwise the first
// in metadata order.
func ToMetadataPackageID(md *metadata.Metadata, id PackageID) (metadata.PackageID, bool) {
	var first metadata.PackageID
	found := false
	want := id.Source.Normalized()
	for _, pkg := range md.Packages {
		if pkg.Name != id.Name || !pkg.Version.Equal(id.Version) {
			continue
		}
		if src, err := ParseSource(pkg.Source); err == nil && src.Normalized() == want {
			return pkg.ID, true
		}
		if !found {
			first, found = pkg.ID, true
		}
	}
	return first, found
}

// DependencyPackageID resolves a declared dependency of parent to a package
// id: a package named dep.Name whose version satisfies the requirement.
// When the resolve graph has a node for parent, only its resolved edges are
// candidates, so optional dependencies that were not enabled stay
// unresolved. Without a node, the package list is searched in order.
func DependencyPackageID(md *metadata.Metadata, parent metadata.PackageID, dep metadata.Dependency) (metadata.PackageID, bool) {
	req, err := dep.Requirement()
	if err != nil {
		return "", false
	}

	if node, ok := md.Node(parent); ok {
		for _, resolved := range node.Dependencies {
			pkg, ok := md.Package(resolved)
			if ok && pkg.Name == dep.Name && req.Matches(pkg.Version) {
				return pkg.ID, true
			}
		}
		return "", false
	}

	for _, pkg := range md.Packages {
		if pkg.Name == dep.Name && req.Matches(pkg.Version) {
			return pkg.ID, true
		}
	}
	return "", false
}

// DepsNotReplaced returns the direct dependency ids of the package, one entry
// per distinct resolved package, in first-seen order. Declared dependencies
// that resolve to no package are dropped. ok is false when id is not in the
// metadata.
func DepsNotReplaced(md *metadata.Metadata, id metadata.PackageID, logger *slog.Logger) ([]metadata.PackageID, bool) {
	pkg, ok := md.Package(id)
	if !ok {
		logging.OrDiscard(logger).Warn("failed to convert package id to metadata package", "package", id)
		return nil, false
	}

	seen := make(map[metadata.PackageID]bool, len(pkg.Dependencies))
	deps := make([]metadata.PackageID, 0, len(pkg.Dependencies))
	for _, dep := range pkg.Dependencies {
		depID, ok := DependencyPackageID(md, id, dep)
		if !ok || seen[depID] {
			continue
		}
		seen[depID] = true
		deps = append(deps, depID)
	}
	return deps, true
}

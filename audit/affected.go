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
package audit

import (
	"log/slog"
	"slices"

	"bennypowers.dev/crateaudit/build"
	"bennypowers.dev/crateaudit/graph"
	"bennypowers.dev/crateaudit/internal/logging"
	"bennypowers.dev/crateaudit/internal/semver"
	"bennypowers.dev/crateaudit/mapping"
	"bennypowers.dev/crateaudit/metadata"
)

// Affected returns the graph packages whose source coverage a set of failed
// build units leaves incomplete: each failed unit's package and everything
// that transitively depends on it, sorted. Units that cannot be matched to a
// graph package are logged and skipped.
func Affected(md *metadata.Metadata, g *graph.Graph, failed []build.Unit, logger *slog.Logger) []metadata.PackageID {
	logger = logging.OrDiscard(logger)

	seen := make(map[metadata.PackageID]bool)
	affected := []metadata.PackageID{}
	add := func(id metadata.PackageID) {
		if !seen[id] {
			seen[id] = true
			affected = append(affected, id)
		}
	}

	for _, unit := range failed {
		version, err := semver.ParseVersion(unit.PackageVersion)
		if err != nil {
			logger.Warn("failed unit has no valid package version", "unit", unit.String(), "error", err)
			continue
		}
		id, ok := mapping.ToMetadataPackageID(md, mapping.PackageID{Name: unit.PackageName, Version: version})
		if !ok {
			logger.Warn("failed unit does not belong to a known package", "unit", unit.String())
			continue
		}
		if _, ok := g.Lookup(id); !ok {
			logger.Debug("failed unit's package is outside the audited graph", "unit", unit.String(), "package", id)
			continue
		}
		add(id)
		for _, dependent := range g.TransitiveDependents(id) {
			add(dependent)
		}
	}

	slices.Sort(affected)
	return affected
}

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
package graph

import (
	"log/slog"

	"bennypowers.dev/crateaudit/internal/logging"
	"bennypowers.dev/crateaudit/mapping"
	"bennypowers.dev/crateaudit/metadata"
	"bennypowers.dev/crateaudit/policy"
)

// Build returns the graph of packages reachable from root through
// dependencies the policy admits.
//
// Packages that cannot be found in the catalog or the metadata are logged
// and their subtree is left out; the rest of the graph is still built.
func Build(md *metadata.Metadata, catalog *mapping.Catalog, root metadata.PackageID, pol policy.Policy, logger *slog.Logger) *Graph {
	logger = logging.OrDiscard(logger)

	g := newGraph()
	g.addNode(root)
	pending := []metadata.PackageID{root}

	for len(pending) > 0 {
		id := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		pending = addPackageDependencies(md, catalog, id, pol, g, pending, logger)
	}

	return g
}

// addPackageDependencies adds the admitted edges out of id, returning the
// worklist extended with newly discovered packages.
func addPackageDependencies(
	md *metadata.Metadata,
	catalog *mapping.Catalog,
	id metadata.PackageID,
	pol policy.Policy,
	g *Graph,
	pending []metadata.PackageID,
	logger *slog.Logger,
) []metadata.PackageID {
	index := g.index[id]

	_, inCatalog := catalog.NodeFor(id)
	pkg, inMetadata := md.Package(id)
	deps, resolved := mapping.DepsNotReplaced(md, id, logger)
	if !inCatalog || !inMetadata || !resolved {
		logger.Warn("failed to add package dependencies to graph", "package", id)
		return pending
	}

	for _, depID := range deps {
		for _, dep := range admittedDependencies(catalog, depID, pol, pkg.Dependencies) {
			depIndex, inserted := g.addNode(depID)
			if inserted {
				pending = append(pending, depID)
			}
			g.addEdge(index, depIndex, dep.Kind)
		}
	}
	return pending
}

// admittedDependencies returns the declarations that reconcile to depID
// ignoring source and pass the policy. Indeterminate matches count as no match.
func admittedDependencies(catalog *mapping.Catalog, depID metadata.PackageID, pol policy.Policy, declared []metadata.Dependency) []metadata.Dependency {
	var admitted []metadata.Dependency
	for _, dep := range declared {
		match, ok := catalog.MatchesIgnoringSource(dep, depID)
		if !ok || !match {
			continue
		}
		if !pol.Admits(dep) {
			continue
		}
		admitted = append(admitted, dep)
	}
	return admitted
}

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
// Package audit splits each package's source files into those a build
// compiled and those it never touched.
package audit

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"bennypowers.dev/crateaudit/fs"
	"bennypowers.dev/crateaudit/graph"
	"bennypowers.dev/crateaudit/intercept"
	"bennypowers.dev/crateaudit/internal/logging"
	"bennypowers.dev/crateaudit/mapping"
	"bennypowers.dev/crateaudit/metadata"
)

// SourcePattern selects the source files of a package, relative to its root.
const SourcePattern = "**/*.rs"

// excludedDirs are never searched for sources.
var excludedDirs = []string{"target", ".git"}

// PackageFiles lists one package's source files by whether they were
// compiled. Paths are canonical.
type PackageFiles struct {
	ID      metadata.PackageID `json:"id"`
	Package mapping.PackageID  `json:"package"`
	Root    string             `json:"root,omitempty"`
	Used    []string           `json:"used"`
	Unused  []string           `json:"unused"`

	// Dependencies and Dependents are the package's direct neighbours in
	// the audited graph.
	Dependencies []metadata.PackageID `json:"dependencies"`
	Dependents   []metadata.PackageID `json:"dependents"`
}

// Auditor matches package sources on disk against an interception context.
type Auditor struct {
	fs     fs.FileSystem
	logger *slog.Logger
	jobs   int
}

// New creates an Auditor reading sources from fsys.
func New(fsys fs.FileSystem, logger *slog.Logger) *Auditor {
	return &Auditor{
		fs:     fsys,
		logger: logging.OrDiscard(logger),
		jobs:   8,
	}
}

// WithJobs returns a copy of the auditor that scans at most n packages at
// once.
func (a *Auditor) WithJobs(n int) *Auditor {
	clone := *a
	if n > 0 {
		clone.jobs = n
	}
	return &clone
}

// Files reports the used and unused sources of every package in g, in graph
// node order. Packages that cannot be identified in the metadata are logged
// and left out; packages missing from disk are reported with empty lists.
func (a *Auditor) Files(md *metadata.Metadata, g *graph.Graph, ictx *intercept.Context) ([]PackageFiles, error) {
	nodes := g.Nodes()
	results := make([]*PackageFiles, len(nodes))
	errs := make([]error, len(nodes))

	var wg sync.WaitGroup
	sem := make(chan struct{}, a.jobs)

	for i, id := range nodes {
		pkgID, ok := mapping.ToPackageID(md, id, a.logger)
		if !ok {
			a.logger.Warn("skipping package missing from metadata", "package", id)
			continue
		}
		pkg, _ := md.Package(id)
		entry := &PackageFiles{
			ID:           id,
			Package:      pkgID,
			Root:         pkg.Root(),
			Used:         []string{},
			Unused:       []string{},
			Dependencies: nonNil(g.Dependencies(id)),
			Dependents:   nonNil(g.Dependents(id)),
		}
		results[i] = entry
		if entry.Root == "" || !a.fs.Exists(entry.Root) {
			a.logger.Warn("package root not found", "package", id, "root", entry.Root)
			continue
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			used, unused, err := a.split(entry.Root, ictx)
			if err != nil {
				errs[i] = fmt.Errorf("auditing %s: %w", entry.ID, err)
				return
			}
			entry.Used = used
			entry.Unused = unused
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	files := make([]PackageFiles, 0, len(results))
	for _, entry := range results {
		if entry != nil {
			files = append(files, *entry)
		}
	}
	return files, nil
}

func nonNil(ids []metadata.PackageID) []metadata.PackageID {
	if ids == nil {
		return []metadata.PackageID{}
	}
	return ids
}

func (a *Auditor) split(root string, ictx *intercept.Context) (used, unused []string, err error) {
	matches, err := doublestar.Glob(rooted{fs: a.fs, root: root}, SourcePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, nil, err
	}

	used, unused = []string{}, []string{}
	for _, match := range matches {
		if excluded(match) {
			continue
		}
		canonical, err := a.fs.Canonicalize(filepath.Join(root, filepath.FromSlash(match)))
		if err != nil {
			a.logger.Warn("cannot canonicalize source file", "root", root, "file", match, "error", err)
			continue
		}
		if ictx.HasSourceFile(canonical) {
			used = append(used, canonical)
		} else {
			unused = append(unused, canonical)
		}
	}
	slices.Sort(used)
	slices.Sort(unused)
	return slices.Compact(used), slices.Compact(unused), nil
}

func excluded(match string) bool {
	first, _, _ := strings.Cut(match, "/")
	return slices.Contains(excludedDirs, first)
}

// rooted exposes the subtree of a FileSystem at root as an io/fs.FS with
// slash-separated relative names.
type rooted struct {
	fs   fs.FileSystem
	root string
}

func (r rooted) join(name string) (string, error) {
	if !iofs.ValidPath(name) {
		return "", &iofs.PathError{Op: "open", Path: name, Err: iofs.ErrInvalid}
	}
	return filepath.Join(r.root, filepath.FromSlash(path.Clean(name))), nil
}

func (r rooted) Open(name string) (iofs.File, error) {
	full, err := r.join(name)
	if err != nil {
		return nil, err
	}
	return r.fs.Open(full)
}

func (r rooted) ReadDir(name string) ([]iofs.DirEntry, error) {
	full, err := r.join(name)
	if err != nil {
		return nil, err
	}
	return r.fs.ReadDir(full)
}

func (r rooted) Stat(name string) (iofs.FileInfo, error) {
	full, err := r.join(name)
	if err != nil {
		return nil, err
	}
	return r.fs.Stat(full)
}

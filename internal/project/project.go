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
// Package project loads a Cargo project and builds its dependency graph
// from command-line options.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"bennypowers.dev/crateaudit/fs"
	"bennypowers.dev/crateaudit/graph"
	"bennypowers.dev/crateaudit/internal/logging"
	"bennypowers.dev/crateaudit/mapping"
	"bennypowers.dev/crateaudit/metadata"
	"bennypowers.dev/crateaudit/platform"
	"bennypowers.dev/crateaudit/policy"
)

var (
	// ErrNoManifest is returned when no Cargo.toml is found.
	ErrNoManifest = errors.New("could not find Cargo.toml")
	// ErrNoRoot is returned when the root package cannot be chosen.
	ErrNoRoot = errors.New("could not determine the root package")
)

// Options selects the project, its root package, and the inclusion policy.
type Options struct {
	// ManifestPath is the Cargo.toml to audit. When empty, the nearest one
	// above Dir is used.
	ManifestPath string
	Dir          string

	// MetadataFile is read instead of running cargo metadata.
	MetadataFile string
	Cargo        metadata.Options

	// Package picks a workspace member as the root.
	Package string

	AllDeps    bool
	NoDeps     bool
	DevDeps    bool
	AllTargets bool
	Target     string

	// Platform answers host and cfg queries. Defaults to rustc via os/exec.
	Platform *platform.Provider
}

// Project is a loaded dependency graph and everything it was built from.
type Project struct {
	Metadata *metadata.Metadata
	Catalog  *mapping.Catalog
	Root     metadata.PackageID
	Policy   policy.Policy
	Graph    *graph.Graph
}

// Load reads the metadata and builds the graph.
func Load(ctx context.Context, fsys fs.FileSystem, opts Options, logger *slog.Logger) (*Project, error) {
	logger = logging.OrDiscard(logger)

	md, err := loadMetadata(ctx, fsys, opts)
	if err != nil {
		return nil, err
	}

	root, err := rootPackage(md, opts)
	if err != nil {
		return nil, err
	}

	pol := policy.Policy{
		ExtraDeps: policy.ExtraDepsFromFlags(opts.AllDeps, opts.NoDeps, opts.DevDeps),
	}
	if !opts.AllTargets {
		pol.Platform = platform.NewMatcher(resolveTarget(ctx, opts, logger), logger)
	}

	logger.Debug("building dependency graph", "root", root, "extra_deps", pol.ExtraDeps, "all_targets", opts.AllTargets)
	catalog := mapping.NewCatalog(md, logger)
	g := graph.Build(md, catalog, root, pol, logger)

	return &Project{
		Metadata: md,
		Catalog:  catalog,
		Root:     root,
		Policy:   pol,
		Graph:    g,
	}, nil
}

func loadMetadata(ctx context.Context, fsys fs.FileSystem, opts Options) (*metadata.Metadata, error) {
	if opts.MetadataFile != "" {
		md, err := metadata.ParseFile(fsys, opts.MetadataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
		return md, nil
	}

	manifest, err := manifestPath(fsys, opts)
	if err != nil {
		return nil, err
	}
	md, err := metadata.FromCargo(ctx, manifest, opts.Cargo)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return md, nil
}

func manifestPath(fsys fs.FileSystem, opts Options) (string, error) {
	if opts.ManifestPath != "" {
		return filepath.Abs(opts.ManifestPath)
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return "", fmt.Errorf("invalid directory: %w", err)
	}
	manifest := metadata.FindManifest(fsys, dir)
	if manifest == "" {
		return "", fmt.Errorf("%w in %s or any parent directory", ErrNoManifest, dir)
	}
	return manifest, nil
}

func rootPackage(md *metadata.Metadata, opts Options) (metadata.PackageID, error) {
	if opts.Package != "" {
		pkg, ok := md.WorkspacePackage(opts.Package)
		if !ok {
			return "", fmt.Errorf("%w: %s is not a workspace member", ErrNoRoot, opts.Package)
		}
		return pkg.ID, nil
	}
	if pkg, ok := md.RootPackage(); ok {
		return pkg.ID, nil
	}
	if opts.ManifestPath != "" {
		abs, err := filepath.Abs(opts.ManifestPath)
		if err == nil {
			for _, id := range md.WorkspaceMembers {
				if pkg, ok := md.Package(id); ok && pkg.ManifestPath == abs {
					return id, nil
				}
			}
		}
	}
	if len(md.WorkspaceMembers) == 1 {
		return md.WorkspaceMembers[0], nil
	}
	return "", fmt.Errorf("%w: virtual workspace with %d members, choose one with --package", ErrNoRoot, len(md.WorkspaceMembers))
}

// resolveTarget asks the compiler for the target's cfgs. When that fails the
// target carries no cfgs, so every platform-restricted dependency is left
// out of the graph.
func resolveTarget(ctx context.Context, opts Options, logger *slog.Logger) platform.Target {
	provider := opts.Platform
	if provider == nil {
		provider = platform.NewProvider()
	}
	target, err := provider.Target(ctx, opts.Target)
	if err != nil {
		logger.Warn("could not read target configuration, platform-specific dependencies will be skipped",
			"target", opts.Target, "error", err)
		return platform.Target{Triple: opts.Target}
	}
	return target
}

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
// Package metadata models the output of `cargo metadata --format-version 1`.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"bennypowers.dev/crateaudit/fs"
	"bennypowers.dev/crateaudit/internal/semver"
)

// FormatVersion is the only metadata format version understood by Parse.
const FormatVersion = 1

// ErrUnsupportedFormat is returned when metadata declares an unknown format version.
var ErrUnsupportedFormat = errors.New("unsupported cargo metadata format version")

// PackageID is cargo's opaque package identifier. Two ids are the same
// package only if the strings are equal.
type PackageID string

func (id PackageID) String() string {
	return string(id)
}

// Parts extracts name, version and source from the id string. Both the
// legacy "name version (source)" form and the package-id-spec form
// "source#name@version" are understood. The id must be treated as opaque
// everywhere else; this is a fallback for ids missing from the package list.
func (id PackageID) Parts() (name string, version semver.Version, source string, ok bool) {
	raw := strings.TrimSpace(string(id))

	if hash := strings.LastIndex(raw, "#"); hash >= 0 && strings.Contains(raw[:hash], "+") {
		source = raw[:hash]
		fragment := raw[hash+1:]
		versionPart := fragment
		if at := strings.LastIndex(fragment, "@"); at >= 0 {
			name = fragment[:at]
			versionPart = fragment[at+1:]
		} else {
			name = nameFromSourceURL(source)
		}
		if v, err := semver.ParseVersion(versionPart); err == nil && name != "" {
			return name, v, source, true
		}
		name, source = "", ""
	}

	fields := strings.SplitN(raw, " ", 3)
	if len(fields) < 2 {
		return "", semver.Version{}, "", false
	}
	v, err := semver.ParseVersion(fields[1])
	if err != nil {
		return "", semver.Version{}, "", false
	}
	if len(fields) == 3 {
		source = strings.TrimSuffix(strings.TrimPrefix(fields[2], "("), ")")
	}
	return fields[0], v, source, true
}

// nameFromSourceURL returns the last path segment of a source URL, which
// cargo uses as the package name when the id fragment omits it.
func nameFromSourceURL(source string) string {
	_, rawURL, found := strings.Cut(source, "+")
	if !found {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(path.Base(strings.TrimSuffix(u.Path, "/")), ".git")
}

// DependencyKind classifies a declared dependency.
type DependencyKind int

const (
	// KindNormal is a regular [dependencies] entry. JSON null decodes to it.
	KindNormal DependencyKind = iota
	// KindBuild is a [build-dependencies] entry.
	KindBuild
	// KindDevelopment is a [dev-dependencies] entry.
	KindDevelopment
	// KindUnknown is any kind this version of crateaudit does not recognise.
	KindUnknown
)

// Kinds lists every dependency kind in declaration order.
var Kinds = []DependencyKind{KindNormal, KindBuild, KindDevelopment, KindUnknown}

func (k DependencyKind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindBuild:
		return "build"
	case KindDevelopment:
		return "dev"
	default:
		return "unknown"
	}
}

func (k DependencyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DependencyKind) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*k = KindNormal
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("dependency kind: %w", err)
	}
	switch raw {
	case "", "normal":
		*k = KindNormal
	case "build":
		*k = KindBuild
	case "dev":
		*k = KindDevelopment
	default:
		*k = KindUnknown
	}
	return nil
}

// Dependency is a dependency as declared in a package manifest.
type Dependency struct {
	Name                string         `json:"name"`
	Source              string         `json:"source,omitempty"`
	Req                 string         `json:"req"`
	Kind                DependencyKind `json:"kind"`
	Rename              string         `json:"rename,omitempty"`
	Optional            bool           `json:"optional"`
	UsesDefaultFeatures bool           `json:"uses_default_features"`
	Features            []string       `json:"features,omitempty"`

	// Target is the platform the dependency is restricted to, either a
	// target triple or a cfg() expression. Empty applies everywhere.
	Target string `json:"target,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Requirement parses the declared version requirement.
func (d Dependency) Requirement() (semver.Requirement, error) {
	return semver.ParseRequirement(d.Req)
}

// Target is a compilation target (lib, bin, build script...) of a package.
type Target struct {
	Name    string   `json:"name"`
	Kind    []string `json:"kind"`
	SrcPath string   `json:"src_path"`
	Edition string   `json:"edition,omitempty"`
}

// Package is one entry of the metadata package list.
type Package struct {
	Name         string         `json:"name"`
	Version      semver.Version `json:"version"`
	ID           PackageID      `json:"id"`
	Source       string         `json:"source,omitempty"`
	Dependencies []Dependency   `json:"dependencies"`
	Targets      []Target       `json:"targets,omitempty"`
	ManifestPath string         `json:"manifest_path"`
}

// Root returns the directory containing the package manifest.
func (p *Package) Root() string {
	if p.ManifestPath == "" {
		return ""
	}
	return filepath.Dir(p.ManifestPath)
}

// DepKindInfo is one (kind, platform) pair under which a resolved
// dependency is used.
type DepKindInfo struct {
	Kind   DependencyKind `json:"kind"`
	Target string         `json:"target,omitempty"`
}

// NodeDep is a resolved dependency edge in the resolve graph.
type NodeDep struct {
	Name     string        `json:"name"`
	Pkg      PackageID     `json:"pkg"`
	DepKinds []DepKindInfo `json:"dep_kinds,omitempty"`
}

// Node is a package in the resolve graph.
type Node struct {
	ID           PackageID   `json:"id"`
	Dependencies []PackageID `json:"dependencies"`
	Deps         []NodeDep   `json:"deps,omitempty"`
	Features     []string    `json:"features,omitempty"`
}

// Resolve is the dependency graph cargo resolved for the workspace.
type Resolve struct {
	Nodes []Node    `json:"nodes"`
	Root  PackageID `json:"root,omitempty"`
}

// Metadata is the parsed output of `cargo metadata`.
type Metadata struct {
	Packages         []Package   `json:"packages"`
	WorkspaceMembers []PackageID `json:"workspace_members"`
	Resolve          *Resolve    `json:"resolve,omitempty"`
	WorkspaceRoot    string      `json:"workspace_root"`
	TargetDirectory  string      `json:"target_directory"`
	Version          int         `json:"version"`

	// The lookup index is built once, on first use, and is safe to share
	// between goroutines. Packages and Resolve must not change afterwards.
	indexOnce sync.Once
	packages  map[PackageID]int
	nodes     map[PackageID]int
}

// Parse parses `cargo metadata --format-version 1` output.
func Parse(data []byte) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, err
	}
	if md.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, md.Version)
	}
	md.index()
	return &md, nil
}

// ParseFile parses a metadata JSON file.
func ParseFile(fs fs.FileSystem, path string) (*Metadata, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Options configures how cargo is asked for metadata.
type Options struct {
	// Cargo is the cargo executable. Defaults to "cargo".
	Cargo string

	Features          []string
	AllFeatures       bool
	NoDefaultFeatures bool
	Offline           bool
}

// FromCargo runs `cargo metadata` for the given manifest and parses its output.
func FromCargo(ctx context.Context, manifestPath string, opts Options) (*Metadata, error) {
	cargo := opts.Cargo
	if cargo == "" {
		cargo = "cargo"
	}
	args := []string{"metadata", "--format-version", "1", "--manifest-path", manifestPath}
	if len(opts.Features) > 0 {
		args = append(args, "--features", strings.Join(opts.Features, ","))
	}
	if opts.AllFeatures {
		args = append(args, "--all-features")
	}
	if opts.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	if opts.Offline {
		args = append(args, "--offline")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cargo, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cargo metadata: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return Parse(stdout.Bytes())
}

func (md *Metadata) index() {
	md.indexOnce.Do(md.buildIndex)
}

func (md *Metadata) buildIndex() {
	md.packages = make(map[PackageID]int, len(md.Packages))
	for i := range md.Packages {
		md.packages[md.Packages[i].ID] = i
	}
	md.nodes = make(map[PackageID]int)
	if md.Resolve != nil {
		for i := range md.Resolve.Nodes {
			md.nodes[md.Resolve.Nodes[i].ID] = i
		}
	}
}

// Package returns the package with exactly the given id.
func (md *Metadata) Package(id PackageID) (*Package, bool) {
	md.index()
	i, ok := md.packages[id]
	if !ok {
		return nil, false
	}
	return &md.Packages[i], true
}

// Node returns the resolve graph node for id.
func (md *Metadata) Node(id PackageID) (*Node, bool) {
	md.index()
	i, ok := md.nodes[id]
	if !ok {
		return nil, false
	}
	return &md.Resolve.Nodes[i], true
}

// RootPackage returns the package the metadata was generated for. In a
// virtual workspace there is none.
func (md *Metadata) RootPackage() (*Package, bool) {
	if md.Resolve == nil || md.Resolve.Root == "" {
		return nil, false
	}
	return md.Package(md.Resolve.Root)
}

// WorkspacePackage finds a workspace member by name.
func (md *Metadata) WorkspacePackage(name string) (*Package, bool) {
	for _, id := range md.WorkspaceMembers {
		if pkg, ok := md.Package(id); ok && pkg.Name == name {
			return pkg, true
		}
	}
	return nil, false
}

// FindManifest walks up the directory tree from startDir to the nearest
// Cargo.toml. Returns an empty string when none is found.
func FindManifest(fs fs.FileSystem, startDir string) string {
	dir := startDir
	for {
		manifest := filepath.Join(dir, "Cargo.toml")
		if stat, err := fs.Stat(manifest); err == nil && !stat.IsDir() {
			return manifest
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

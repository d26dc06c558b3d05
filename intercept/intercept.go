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
// Package intercept observes compiler invocations during a build and records
// which source files and output directories each one used.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"bennypowers.dev/crateaudit/build"
	"bennypowers.dev/crateaudit/fs"
	"bennypowers.dev/crateaudit/internal/logging"
)

// OutDirFlag is the compiler flag naming a unit's output directory.
const OutDirFlag = "--out-dir"

// SourceSuffix identifies source file arguments, compared case-insensitively.
const SourceSuffix = ".rs"

// ErrOutDirMissing is returned for commands without an output directory.
var ErrOutDirMissing = errors.New("missing output directory")

// ResolveError reports a source file argument that could not be resolved to
// a canonical path.
type ResolveError struct {
	Path string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving source file %s: %v", e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Executor is a build.Executor that records every invocation in a Context
// before running it unchanged.
type Executor struct {
	cwd     string
	context *Context
	fs      fs.FileSystem
	runner  build.Runner
	logger  *slog.Logger
}

var _ build.Executor = (*Executor)(nil)

// New creates an Executor. cwd resolves relative source paths of commands
// that do not set their own working directory.
func New(cwd string, ictx *Context, fs fs.FileSystem, runner build.Runner, logger *slog.Logger) *Executor {
	return &Executor{
		cwd:     cwd,
		context: ictx,
		fs:      fs,
		runner:  runner,
		logger:  logging.OrDiscard(logger),
	}
}

// Context returns the context the executor records into.
func (e *Executor) Context() *Context {
	return e.context
}

// Exec records the command's source files and output directory, then runs
// it. On any recording error the command is not run and nothing is recorded.
func (e *Executor) Exec(ctx context.Context, cmd build.Command) error {
	outDir, err := outDirArg(cmd)
	if err != nil {
		e.logger.Error("cannot intercept compiler invocation", "command", cmd.String(), "error", err)
		return err
	}

	// The command's own directory can differ from the one crateaudit was
	// started in.
	cwd := cmd.Dir
	if cwd == "" {
		cwd = e.cwd
	}

	var (
		sourceFiles []string
		base        string
	)
	for _, arg := range cmd.Args {
		if !strings.HasSuffix(strings.ToLower(arg), SourceSuffix) {
			continue
		}
		raw := arg
		if !filepath.IsAbs(raw) {
			// Joining cleans ".." lexically, which is only right once the
			// directory itself has no symlinks left.
			if base == "" {
				resolved, err := e.fs.Canonicalize(cwd)
				if err != nil {
					rerr := &ResolveError{Path: cwd, Err: err}
					e.logger.Error("cannot intercept compiler invocation", "command", cmd.String(), "error", rerr)
					return rerr
				}
				base = resolved
			}
			raw = filepath.Join(base, raw)
		}
		path, err := e.fs.Canonicalize(raw)
		if err != nil {
			rerr := &ResolveError{Path: raw, Err: err}
			e.logger.Error("cannot intercept compiler invocation", "command", cmd.String(), "error", rerr)
			return rerr
		}
		sourceFiles = append(sourceFiles, path)
	}

	if err := e.context.record(sourceFiles, outDir); err != nil {
		e.logger.Error("cannot intercept compiler invocation", "command", cmd.String(), "error", err)
		return err
	}

	return e.runner.Run(ctx, cmd)
}

// ForceRebuild is always true: a unit skipped as fresh would never reach
// Exec and its files would go unrecorded.
func (e *Executor) ForceRebuild(build.Unit) bool {
	return true
}

func outDirArg(cmd build.Command) (string, error) {
	for i, arg := range cmd.Args {
		if value, ok := strings.CutPrefix(arg, OutDirFlag+"="); ok && value != "" {
			return value, nil
		}
		if arg != OutDirFlag {
			continue
		}
		if i+1 >= len(cmd.Args) {
			return "", fmt.Errorf("%w: %s has no value in `%s`", ErrOutDirMissing, OutDirFlag, cmd)
		}
		return cmd.Args[i+1], nil
	}
	return "", fmt.Errorf("%w: no %s in `%s`", ErrOutDirMissing, OutDirFlag, cmd)
}

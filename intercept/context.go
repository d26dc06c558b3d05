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
package intercept

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrContextPoisoned is returned once a panic has interrupted an update of
// the context. Entries recorded before the panic are kept.
var ErrContextPoisoned = errors.New("interception context poisoned by an earlier panic")

// Context accumulates what the intercepted compiler invocations of one build
// were given. It is shared by every concurrently running invocation and only
// ever grows.
type Context struct {
	mu          sync.Mutex
	sourceFiles map[string]struct{}
	outDirs     map[string]struct{}
	poisoned    bool
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{
		sourceFiles: make(map[string]struct{}),
		outDirs:     make(map[string]struct{}),
	}
}

// record inserts the source files and output directory of one invocation
// in a single critical section.
func (c *Context) record(sourceFiles []string, outDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned {
		return ErrContextPoisoned
	}

	done := false
	defer func() {
		if !done {
			c.poisoned = true
		}
	}()

	for _, path := range sourceFiles {
		c.sourceFiles[path] = struct{}{}
	}
	c.outDirs[outDir] = struct{}{}

	done = true
	return nil
}

// SourceFiles returns the canonical paths of every source file passed to a
// compiler, sorted. Only read it after the build has finished.
func (c *Context) SourceFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.sourceFiles))
}

// OutDirs returns every output directory passed to a compiler, sorted.
func (c *Context) OutDirs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.outDirs))
}

// HasSourceFile reports whether the canonical path was compiled.
func (c *Context) HasSourceFile(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sourceFiles[path]
	return ok
}

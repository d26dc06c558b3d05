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
// Package build runs the compiler invocations of a cargo build plan through
// an Executor, which may observe or wrap each command.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is a single program invocation, as the build would run it.
type Command struct {
	Program string
	Args    []string
	// Dir is the working directory. Empty inherits the caller's.
	Dir string
	// Env holds KEY=VALUE pairs added to the inherited environment.
	Env []string
}

// String renders the command as a shell would accept it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Program))
	for _, arg := range c.Args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !isShellSafe(r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./=:,+@%", r)
}

// Runner executes a command and waits for it to finish.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ProcessRunner runs commands as child processes.
type ProcessRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r *ProcessRunner) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	if err := c.Run(); err != nil {
		return fmt.Errorf("process didn't exit successfully: %s: %w", cmd, err)
	}
	return nil
}

// Unit is one compilation unit of the build.
type Unit struct {
	Index          int
	PackageName    string
	PackageVersion string
	TargetKind     []string
	Mode           string
	Outputs        []string
	Deps           []int
}

func (u Unit) String() string {
	return fmt.Sprintf("%s v%s (%s)", u.PackageName, u.PackageVersion, strings.Join(u.TargetKind, ","))
}

// Executor is consulted for every unit of a build.
type Executor interface {
	// Exec runs the unit's command. A returned error fails the unit.
	Exec(ctx context.Context, cmd Command) error
	// ForceRebuild reports whether the unit must run even when its outputs
	// are already present.
	ForceRebuild(unit Unit) bool
}

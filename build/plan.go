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
package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strings"

	"bennypowers.dev/crateaudit/fs"
)

// Invocation is one entry of a cargo build plan
// (`cargo build --build-plan -Z unstable-options`).
type Invocation struct {
	PackageName    string            `json:"package_name"`
	PackageVersion string            `json:"package_version"`
	TargetKind     []string          `json:"target_kind"`
	CompileMode    string            `json:"compile_mode"`
	Deps           []int             `json:"deps"`
	Outputs        []string          `json:"outputs"`
	Program        string            `json:"program"`
	Args           []string          `json:"args"`
	Env            map[string]string `json:"env"`
	Cwd            string            `json:"cwd"`
}

// Plan is a parsed build plan.
type Plan struct {
	Invocations []Invocation `json:"invocations"`
	Inputs      []string     `json:"inputs"`
}

// ParsePlan parses build plan JSON and checks that dependency indices
// refer to other invocations of the plan.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	for i, inv := range plan.Invocations {
		for _, dep := range inv.Deps {
			if dep < 0 || dep >= len(plan.Invocations) || dep == i {
				return nil, fmt.Errorf("invocation %d (%s): invalid dependency index %d", i, inv.PackageName, dep)
			}
		}
	}
	return &plan, nil
}

// ParsePlanFile parses a build plan file.
func ParsePlanFile(fs fs.FileSystem, path string) (*Plan, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePlan(data)
}

// PlanFromCargo asks cargo for the build plan of the manifest without
// building anything. The flag is unstable and needs a nightly toolchain.
func PlanFromCargo(ctx context.Context, cargo, manifestPath string, extraArgs ...string) (*Plan, error) {
	if cargo == "" {
		cargo = "cargo"
	}
	args := []string{"build", "--build-plan", "-Z", "unstable-options", "--manifest-path", manifestPath}
	args = append(args, extraArgs...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cargo, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cargo build --build-plan: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParsePlan(stdout.Bytes())
}

// Unit describes invocation i as a compilation unit.
func (p *Plan) Unit(i int) Unit {
	inv := p.Invocations[i]
	return Unit{
		Index:          i,
		PackageName:    inv.PackageName,
		PackageVersion: inv.PackageVersion,
		TargetKind:     inv.TargetKind,
		Mode:           inv.CompileMode,
		Outputs:        inv.Outputs,
		Deps:           inv.Deps,
	}
}

// Command builds the command line of invocation i. Environment entries are
// sorted by key.
func (p *Plan) Command(i int) Command {
	inv := p.Invocations[i]
	env := make([]string, 0, len(inv.Env))
	for _, key := range slices.Sorted(maps.Keys(inv.Env)) {
		env = append(env, key+"="+inv.Env[key])
	}
	return Command{
		Program: inv.Program,
		Args:    slices.Clone(inv.Args),
		Dir:     inv.Cwd,
		Env:     env,
	}
}

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
package build_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/crateaudit/build"
	"bennypowers.dev/crateaudit/testutil"
)

func loadPlan(t *testing.T) *build.Plan {
	t.Helper()
	mfs := testutil.NewFixtureFS(t, "build", "/fixtures")
	plan, err := build.ParsePlanFile(mfs, "/fixtures/plan.json")
	require.NoError(t, err)
	return plan
}

func TestParsePlanFile(t *testing.T) {
	plan := loadPlan(t)

	require.Len(t, plan.Invocations, 5)
	assert.Equal(t, []string{"/work/app/Cargo.toml"}, plan.Inputs)

	unit := plan.Unit(4)
	assert.Equal(t, "app v0.1.0 (bin)", unit.String())
	assert.Equal(t, []int{0, 2, 3}, unit.Deps)
	assert.Equal(t, 4, unit.Index)

	cmd := plan.Command(4)
	assert.Equal(t, "rustc", cmd.Program)
	assert.Equal(t, "/work/app", cmd.Dir)
	want := []string{
		"CARGO_PKG_NAME=app",
		"CARGO_PKG_VERSION=0.1.0",
		"OUT_DIR=/work/app/target/debug/build/app-4b7a/out",
	}
	if diff := cmp.Diff(want, cmd.Env); diff != "" {
		t.Errorf("Command().Env mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanCommandIsACopy(t *testing.T) {
	plan := loadPlan(t)
	cmd := plan.Command(0)
	cmd.Args[0] = "--changed"
	assert.Equal(t, "--crate-name", plan.Invocations[0].Args[0])
}

func TestParsePlanRejectsBadDependencies(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"self dependency", `{"invocations":[{"package_name":"a","deps":[0]}]}`},
		{"out of range", `{"invocations":[{"package_name":"a","deps":[1]}]}`},
		{"negative", `{"invocations":[{"package_name":"a","deps":[-1]}]}`},
		{"malformed", `{"invocations":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build.ParsePlan([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestCommandString(t *testing.T) {
	cmd := build.Command{
		Program: "/usr/bin/rustc",
		Args:    []string{"--cfg", `feature="std"`, "src/lib.rs", "", "it's"},
	}
	assert.Equal(t, `/usr/bin/rustc --cfg 'feature="std"' src/lib.rs '' 'it'\''s'`, cmd.String())
}

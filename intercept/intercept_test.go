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
package intercept_test

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/crateaudit/build"
	"bennypowers.dev/crateaudit/intercept"
	"bennypowers.dev/crateaudit/internal/mapfs"
)

type recordingRunner struct {
	mu   sync.Mutex
	cmds []build.Command
	err  error
}

func (r *recordingRunner) Run(ctx context.Context, cmd build.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

func newFS() *mapfs.MapFileSystem {
	mfs := mapfs.New()
	mfs.AddFile("/work/app/src/main.rs", "fn main() {}\n", 0644)
	mfs.AddFile("/work/app/src/util.rs", "\n", 0644)
	mfs.AddFile("/work/lib/src/lib.rs", "\n", 0644)
	mfs.AddFile("/work/lib/src/LOUD.RS", "\n", 0644)
	mfs.AddDir("/work/app/target/debug/deps", 0755)
	return mfs
}

func rustc(dir string, args ...string) build.Command {
	return build.Command{Program: "rustc", Args: args, Dir: dir}
}

func TestExecRecordsSourcesAndOutDir(t *testing.T) {
	runner := &recordingRunner{}
	ictx := intercept.NewContext()
	exec := intercept.New("/elsewhere", ictx, newFS(), runner, nil)

	cmd := rustc("/work/app",
		"--crate-name", "app", "--edition=2021", "src/main.rs",
		"--out-dir", "/work/app/target/debug/deps", "-C", "opt-level=0")
	require.NoError(t, exec.Exec(context.Background(), cmd))

	assert.Equal(t, []string{"/work/app/src/main.rs"}, ictx.SourceFiles())
	assert.Equal(t, []string{"/work/app/target/debug/deps"}, ictx.OutDirs())
	require.Equal(t, 1, runner.count())
	assert.Equal(t, cmd, runner.cmds[0], "the command is forwarded unchanged")
}

func TestExecFallsBackToExecutorCwd(t *testing.T) {
	ictx := intercept.NewContext()
	exec := intercept.New("/work/lib", ictx, newFS(), &recordingRunner{}, nil)

	err := exec.Exec(context.Background(), rustc("", "src/lib.rs", "--out-dir", "/out"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/lib/src/lib.rs"}, ictx.SourceFiles())
}

func TestExecSourceSuffixIsCaseInsensitive(t *testing.T) {
	ictx := intercept.NewContext()
	exec := intercept.New("/", ictx, newFS(), &recordingRunner{}, nil)

	err := exec.Exec(context.Background(), rustc("/work/lib", "src/LOUD.RS", "/work/lib/src/lib.rs", "--out-dir", "/out"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/lib/src/LOUD.RS", "/work/lib/src/lib.rs"}, ictx.SourceFiles())
}

func TestExecCanonicalizesSymlinks(t *testing.T) {
	mfs := newFS()
	mfs.AddSymlink("/work/vendored", "/work/lib")

	ictx := intercept.NewContext()
	exec := intercept.New("/", ictx, mfs, &recordingRunner{}, nil)

	err := exec.Exec(context.Background(), rustc("/work/vendored", "src/./lib.rs", "--out-dir", "/out"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/lib/src/lib.rs"}, ictx.SourceFiles())
	assert.True(t, ictx.HasSourceFile("/work/lib/src/lib.rs"))
}

func TestExecResolvesParentOfSymlinkedCwd(t *testing.T) {
	mfs := newFS()
	mfs.AddFile("/real/pkg/build.rs", "\n", 0644)
	mfs.AddDir("/real/pkg/scripts", 0755)
	mfs.AddSymlink("/work/scripts", "/real/pkg/scripts")

	ictx := intercept.NewContext()
	exec := intercept.New("/", ictx, mfs, &recordingRunner{}, nil)

	err := exec.Exec(context.Background(), rustc("/work/scripts", "../build.rs", "--out-dir", "/out"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/real/pkg/build.rs"}, ictx.SourceFiles(), "\"..\" is taken from the link target")
}

func TestExecMissingCwd(t *testing.T) {
	runner := &recordingRunner{}
	ictx := intercept.NewContext()
	exec := intercept.New("/", ictx, newFS(), runner, nil)

	err := exec.Exec(context.Background(), rustc("/gone", "src/lib.rs", "--out-dir", "/out"))
	var rerr *intercept.ResolveError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "/gone", rerr.Path)
	assert.Empty(t, ictx.SourceFiles())
	assert.Zero(t, runner.count())
}

func TestExecOutDirEqualsForm(t *testing.T) {
	ictx := intercept.NewContext()
	exec := intercept.New("/", ictx, newFS(), &recordingRunner{}, nil)

	require.NoError(t, exec.Exec(context.Background(), rustc("/work/lib", "src/lib.rs", "--out-dir=/out")))
	assert.Equal(t, []string{"/out"}, ictx.OutDirs())
}

func TestExecFailuresLeaveContextUntouched(t *testing.T) {
	tests := []struct {
		name  string
		cmd   build.Command
		check func(t *testing.T, err error)
	}{
		{
			name: "no out-dir flag",
			cmd:  rustc("/work/app", "src/main.rs"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, intercept.ErrOutDirMissing)
				assert.Contains(t, err.Error(), "rustc src/main.rs")
			},
		},
		{
			name: "out-dir without value",
			cmd:  rustc("/work/app", "src/main.rs", "--out-dir"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, intercept.ErrOutDirMissing)
			},
		},
		{
			name: "source file does not exist",
			cmd:  rustc("/work/app", "src/main.rs", "src/missing.rs", "--out-dir", "/out"),
			check: func(t *testing.T, err error) {
				var rerr *intercept.ResolveError
				require.ErrorAs(t, err, &rerr)
				assert.Equal(t, "/work/app/src/missing.rs", rerr.Path)
				assert.ErrorIs(t, err, fs.ErrNotExist)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			ictx := intercept.NewContext()
			exec := intercept.New("/", ictx, newFS(), runner, nil)

			err := exec.Exec(context.Background(), tt.cmd)
			require.Error(t, err)
			tt.check(t, err)

			assert.Empty(t, ictx.SourceFiles())
			assert.Empty(t, ictx.OutDirs())
			assert.Zero(t, runner.count(), "a command that cannot be recorded is not run")
		})
	}
}

func TestExecSurfacesRunnerError(t *testing.T) {
	boom := errors.New("exit status 101")
	ictx := intercept.NewContext()
	exec := intercept.New("/", ictx, newFS(), &recordingRunner{err: boom}, nil)

	err := exec.Exec(context.Background(), rustc("/work/app", "src/main.rs", "--out-dir", "/out"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"/work/app/src/main.rs"}, ictx.SourceFiles(), "the invocation is recorded before it runs")
}

func TestForceRebuild(t *testing.T) {
	exec := intercept.New("/", intercept.NewContext(), newFS(), &recordingRunner{}, nil)
	assert.True(t, exec.ForceRebuild(build.Unit{PackageName: "app"}))
}

func TestConcurrentInvocationsShareOutDir(t *testing.T) {
	runner := &recordingRunner{}
	ictx := intercept.NewContext()
	exec := intercept.New("/", ictx, newFS(), runner, nil)

	cmds := []build.Command{
		rustc("/work/app", "src/main.rs", "--out-dir", "/work/app/target/debug/deps"),
		rustc("/work/lib", "src/lib.rs", "--out-dir", "/work/app/target/debug/deps"),
		rustc("/work/app", "src/util.rs", "--out-dir", "/work/app/target/debug/deps"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(cmds))
	for i, cmd := range cmds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = exec.Exec(context.Background(), cmd)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"/work/app/target/debug/deps"}, ictx.OutDirs())
	assert.Equal(t, []string{
		"/work/app/src/main.rs",
		"/work/app/src/util.rs",
		"/work/lib/src/lib.rs",
	}, ictx.SourceFiles())
	assert.Equal(t, 3, runner.count())
	assert.Same(t, ictx, exec.Context())
}

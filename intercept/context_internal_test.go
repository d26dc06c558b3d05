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
	"context"
	"errors"
	"testing"

	"bennypowers.dev/crateaudit/build"
	"bennypowers.dev/crateaudit/internal/mapfs"
)

type nopRunner struct{}

func (nopRunner) Run(context.Context, build.Command) error { return nil }

func TestPanicPoisonsContext(t *testing.T) {
	// A context without its sets panics on the first insert.
	c := &Context{}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected record to panic")
			}
		}()
		_ = c.record([]string{"/a.rs"}, "/out")
	}()

	if err := c.record([]string{"/b.rs"}, "/out"); !errors.Is(err, ErrContextPoisoned) {
		t.Fatalf("record() after panic error = %v, want ErrContextPoisoned", err)
	}
}

func TestPoisonedContextRejectsInvocations(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/src/lib.rs", "", 0644)

	c := NewContext()
	if err := c.record([]string{"/src/lib.rs"}, "/out"); err != nil {
		t.Fatalf("record() error = %v", err)
	}
	c.poisoned = true

	exec := New("/", c, mfs, nopRunner{}, nil)
	err := exec.Exec(context.Background(), build.Command{Program: "rustc", Args: []string{"/src/lib.rs", "--out-dir", "/other"}})
	if !errors.Is(err, ErrContextPoisoned) {
		t.Fatalf("Exec() error = %v, want ErrContextPoisoned", err)
	}
	if got := c.OutDirs(); len(got) != 1 || got[0] != "/out" {
		t.Errorf("OutDirs() = %v, want entries recorded before poisoning", got)
	}
}

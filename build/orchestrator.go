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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"bennypowers.dev/crateaudit/fs"
	"bennypowers.dev/crateaudit/internal/logging"
)

// ErrDependencyCycle is reported for units whose dependencies never complete.
var ErrDependencyCycle = errors.New("dependency cycle in build plan")

// Result records how each unit of a build ended, by invocation index.
type Result struct {
	Succeeded []int `json:"succeeded"`
	// Fresh units were skipped because their outputs exist and the
	// executor did not force a rebuild.
	Fresh  []int `json:"fresh"`
	Failed []int `json:"failed"`
	// Skipped units were not run because a dependency failed.
	Skipped []int `json:"skipped"`
}

// Orchestrator runs a build plan, starting each unit once all of its
// dependencies have succeeded.
type Orchestrator struct {
	// Jobs bounds concurrently running units. Defaults to runtime.NumCPU().
	Jobs   int
	FS     fs.FileSystem
	Logger *slog.Logger
}

type unitState int

const (
	statePending unitState = iota
	stateRunning
	stateDone
)

type unitOutcome struct {
	index int
	fresh bool
	err   error
}

// Run executes the plan through exec. A failing unit does not stop
// independent units; its dependents are skipped. The returned error joins
// every unit failure.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan, exec Executor) (*Result, error) {
	logger := logging.OrDiscard(o.Logger)
	jobs := o.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	n := len(plan.Invocations)
	state := make([]unitState, n)
	waiting := make([]int, n)
	dependents := make([][]int, n)
	var ready []int
	for i, inv := range plan.Invocations {
		waiting[i] = len(inv.Deps)
		for _, dep := range inv.Deps {
			dependents[dep] = append(dependents[dep], i)
		}
		if waiting[i] == 0 {
			ready = append(ready, i)
		}
	}

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, jobs)
		outcomes = make(chan unitOutcome)
		result   = &Result{}
		errs     []error
		running  int
		resolved int
	)

	skip := func(from int) {
		queue := slices.Clone(dependents[from])
		for len(queue) > 0 {
			d := queue[0]
			queue = queue[1:]
			if state[d] != statePending {
				continue
			}
			state[d] = stateDone
			resolved++
			result.Skipped = append(result.Skipped, d)
			logger.Debug("skipping unit after dependency failure", "unit", plan.Unit(d).String())
			queue = append(queue, dependents[d]...)
		}
	}

	for resolved < n {
		for _, i := range ready {
			if state[i] != statePending {
				continue
			}
			state[i] = stateRunning
			running++
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				outcomes <- o.runUnit(ctx, plan, i, exec, logger)
			}(i)
		}
		ready = ready[:0]

		if running == 0 {
			for i := range state {
				if state[i] == statePending {
					state[i] = stateDone
					resolved++
					result.Skipped = append(result.Skipped, i)
					errs = append(errs, fmt.Errorf("%s: %w", plan.Unit(i), ErrDependencyCycle))
				}
			}
			break
		}

		out := <-outcomes
		running--
		resolved++
		state[out.index] = stateDone

		switch {
		case out.err != nil:
			result.Failed = append(result.Failed, out.index)
			errs = append(errs, out.err)
			skip(out.index)
		default:
			if out.fresh {
				result.Fresh = append(result.Fresh, out.index)
			} else {
				result.Succeeded = append(result.Succeeded, out.index)
			}
			for _, d := range dependents[out.index] {
				waiting[d]--
				if waiting[d] == 0 && state[d] == statePending {
					ready = append(ready, d)
				}
			}
		}
	}
	wg.Wait()

	slices.Sort(result.Succeeded)
	slices.Sort(result.Fresh)
	slices.Sort(result.Failed)
	slices.Sort(result.Skipped)
	return result, errors.Join(errs...)
}

func (o *Orchestrator) runUnit(ctx context.Context, plan *Plan, i int, exec Executor, logger *slog.Logger) unitOutcome {
	unit := plan.Unit(i)
	if err := ctx.Err(); err != nil {
		return unitOutcome{index: i, err: fmt.Errorf("%s: %w", unit, err)}
	}

	if !exec.ForceRebuild(unit) && o.outputsExist(unit) {
		logger.Debug("unit is fresh", "unit", unit.String())
		return unitOutcome{index: i, fresh: true}
	}

	logger.Debug("running unit", "unit", unit.String())
	if err := exec.Exec(ctx, plan.Command(i)); err != nil {
		logger.Error("unit failed", "unit", unit.String(), "error", err)
		return unitOutcome{index: i, err: fmt.Errorf("%s: %w", unit, err)}
	}
	return unitOutcome{index: i}
}

func (o *Orchestrator) outputsExist(unit Unit) bool {
	if o.FS == nil || len(unit.Outputs) == 0 {
		return false
	}
	for _, output := range unit.Outputs {
		if !o.FS.Exists(output) {
			return false
		}
	}
	return true
}

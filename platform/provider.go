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
package platform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNoHost is returned when `rustc -vV` does not report a host triple.
var ErrNoHost = errors.New("rustc did not report a host triple")

// Target is the compilation target dependencies are evaluated against.
type Target struct {
	Triple string
	Cfgs   []Cfg
}

// Runner runs a program and returns its standard output.
type Runner interface {
	Output(ctx context.Context, program string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, program string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", program, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Provider asks rustc for the host triple and target cfgs.
type Provider struct {
	// Rustc is the compiler executable. Defaults to $RUSTC, then "rustc".
	Rustc  string
	Runner Runner
}

// NewProvider creates a Provider using os/exec and the default compiler.
func NewProvider() *Provider {
	return &Provider{Runner: ExecRunner{}}
}

func (p *Provider) rustc() string {
	if p.Rustc != "" {
		return p.Rustc
	}
	if env := os.Getenv("RUSTC"); env != "" {
		return env
	}
	return "rustc"
}

func (p *Provider) runner() Runner {
	if p.Runner != nil {
		return p.Runner
	}
	return ExecRunner{}
}

// Host returns the triple rustc compiles for by default.
func (p *Provider) Host(ctx context.Context) (string, error) {
	out, err := p.runner().Output(ctx, p.rustc(), "-vV")
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if host, ok := strings.CutPrefix(scanner.Text(), "host:"); ok {
			return strings.TrimSpace(host), nil
		}
	}
	return "", ErrNoHost
}

// Cfgs returns the cfg set rustc enables for triple. An empty triple
// queries the host.
func (p *Provider) Cfgs(ctx context.Context, triple string) ([]Cfg, error) {
	args := []string{"--print", "cfg"}
	if triple != "" {
		args = append(args, "--target", triple)
	}
	out, err := p.runner().Output(ctx, p.rustc(), args...)
	if err != nil {
		return nil, err
	}
	return ParseCfgs(string(out))
}

// Target resolves the triple to evaluate against (requested, or the host
// when empty) together with its cfgs.
func (p *Provider) Target(ctx context.Context, requested string) (Target, error) {
	triple := requested
	if triple == "" {
		host, err := p.Host(ctx)
		if err != nil {
			return Target{}, err
		}
		triple = host
	}
	cfgs, err := p.Cfgs(ctx, triple)
	if err != nil {
		return Target{}, fmt.Errorf("reading cfgs for %s: %w", triple, err)
	}
	return Target{Triple: triple, Cfgs: cfgs}, nil
}

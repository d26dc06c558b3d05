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
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestMain(m *testing.M) {
	// Build the binary before running tests
	wd := mustGetwd()
	cmd := exec.Command("go", "build", "-o", "crateaudit_test", ".")
	cmd.Dir = wd
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("failed to build test binary: " + err.Error() + "\n" + string(out))
	}
	code := m.Run()
	_ = os.Remove(filepath.Join(wd, "crateaudit_test"))
	os.Exit(code)
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return wd
}

func runCLI(t *testing.T, env []string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	binary := filepath.Join(mustGetwd(), "crateaudit_test")
	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(), env...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			t.Fatalf("Failed to run CLI: %v", err)
		}
	}

	return stdout, stderr, exitCode
}

type graphOutput struct {
	Root  string   `json:"root"`
	Nodes []string `json:"nodes"`
	Edges []struct {
		From int    `json:"from"`
		To   int    `json:"to"`
		Kind string `json:"kind"`
	} `json:"edges"`
}

func parseGraph(t *testing.T, data string) graphOutput {
	t.Helper()
	var g graphOutput
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		t.Fatalf("Failed to parse JSON output: %v\nstdout: %s", err, data)
	}
	return g
}

var simpleMetadata = filepath.Join("testdata", "metadata", "simple.json")

func TestVersion(t *testing.T) {
	stdout, stderr, code := runCLI(t, nil, "version")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	if !strings.HasPrefix(stdout, "crateaudit ") {
		t.Errorf("Expected version line, got: %s", stdout)
	}

	stdout, _, code = runCLI(t, nil, "version", "--format", "json")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d", code)
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("Failed to parse version JSON: %v", err)
	}
	if info["version"] == nil {
		t.Error("Expected version field")
	}
}

func TestGraphAllTargets(t *testing.T) {
	stdout, stderr, code := runCLI(t, nil, "graph", "--metadata", simpleMetadata, "--all-targets")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}

	g := parseGraph(t, stdout)
	if g.Root != "path+file:///work/app#0.1.0" {
		t.Errorf("Expected app as root, got %s", g.Root)
	}
	if len(g.Nodes) != 5 {
		t.Errorf("Expected 5 nodes, got %d: %v", len(g.Nodes), g.Nodes)
	}
	if g.Nodes[0] != g.Root {
		t.Errorf("Expected root at index 0, got %s", g.Nodes[0])
	}
}

func TestGraphFlagsFromEnvironment(t *testing.T) {
	env := []string{"CRATEAUDIT_DEV_DEPS=true", "CRATEAUDIT_ALL_TARGETS=true"}
	stdout, stderr, code := runCLI(t, env, "graph", "--metadata", simpleMetadata)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}

	g := parseGraph(t, stdout)
	if len(g.Nodes) != 7 {
		t.Errorf("Expected dev dependencies to be followed (7 nodes), got %d: %v", len(g.Nodes), g.Nodes)
	}
}

func TestGraphOutputFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "graph.json")

	stdout, stderr, code := runCLI(t, nil, "graph", "--metadata", simpleMetadata, "--all-targets", "--no-deps", "--output", tmpFile)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	if stdout != "" {
		t.Errorf("Expected no stdout when writing to file, got: %s", stdout)
	}

	content, err := os.ReadFile(tmpFile)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	g := parseGraph(t, string(content))
	for _, e := range g.Edges {
		if e.Kind != "normal" {
			t.Errorf("Expected only normal edges with --no-deps, got %s", e.Kind)
		}
	}
}

func TestGraphMissingMetadata(t *testing.T) {
	_, stderr, code := runCLI(t, nil, "graph", "--metadata", filepath.Join(t.TempDir(), "missing.json"), "--all-targets")
	if code == 0 {
		t.Fatal("Expected non-zero exit code for missing metadata file")
	}
	if !strings.Contains(stderr, "failed to read metadata") {
		t.Errorf("Expected metadata error on stderr, got: %s", stderr)
	}
}

// writeProject lays out a one-package project whose build plan runs sh in
// place of rustc.
func writeProject(t *testing.T) (dir, metadataPath, planPath string) {
	t.Helper()
	dir = t.TempDir()
	for path, content := range map[string]string{
		"Cargo.toml":   "[package]\nname = \"hello\"\nversion = \"0.1.0\"\n",
		"src/main.rs":  "mod greet;\nfn main() { greet::hi() }\n",
		"src/greet.rs": "pub fn hi() {}\n",
		"src/dead.rs":  "\n",
	} {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	id := "path+file://" + dir + "#hello@0.1.0"
	md := fmt.Sprintf(`{
  "packages": [{
    "name": "hello", "version": "0.1.0", "id": %[1]q, "source": null,
    "dependencies": [], "manifest_path": %[2]q
  }],
  "workspace_members": [%[1]q],
  "resolve": {"nodes": [{"id": %[1]q, "dependencies": [], "deps": []}], "root": %[1]q},
  "workspace_root": %[3]q,
  "target_directory": %[4]q,
  "version": 1
}`, id, filepath.Join(dir, "Cargo.toml"), dir, filepath.Join(dir, "target"))

	plan := fmt.Sprintf(`{
  "invocations": [{
    "package_name": "hello", "package_version": "0.1.0",
    "target_kind": ["bin"], "compile_mode": "build", "deps": [],
    "outputs": [%[2]q],
    "program": "sh",
    "args": ["-c", "exit 0", "src/main.rs", "src/greet.rs", "--out-dir", %[3]q],
    "env": {"CARGO_PKG_NAME": "hello"},
    "cwd": %[1]q
  }],
  "inputs": []
}`, dir, filepath.Join(dir, "target", "debug", "hello"), filepath.Join(dir, "target", "debug", "deps"))

	metadataPath = filepath.Join(dir, "metadata.json")
	planPath = filepath.Join(dir, "plan.json")
	if err := os.WriteFile(metadataPath, []byte(md), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(planPath, []byte(plan), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, metadataPath, planPath
}

func TestBuildReportsUsedSources(t *testing.T) {
	dir, metadataPath, planPath := writeProject(t)

	stdout, stderr, code := runCLI(t, nil, "build", "--metadata", metadataPath, "--build-plan", planPath, "--all-targets", "-j", "1")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}

	var report struct {
		OutDirs  []string `json:"outDirs"`
		Packages []struct {
			Package struct {
				Name string `json:"name"`
			} `json:"package"`
			Used   []string `json:"used"`
			Unused []string `json:"unused"`
		} `json:"packages"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("Failed to parse report: %v\nstdout: %s", err, stdout)
	}

	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Packages) != 1 || report.Packages[0].Package.Name != "hello" {
		t.Fatalf("Expected one package, got %+v", report.Packages)
	}
	pkg := report.Packages[0]
	wantUsed := []string{filepath.Join(canonical, "src", "greet.rs"), filepath.Join(canonical, "src", "main.rs")}
	if strings.Join(pkg.Used, ",") != strings.Join(wantUsed, ",") {
		t.Errorf("Used = %v, want %v", pkg.Used, wantUsed)
	}
	wantUnused := []string{filepath.Join(canonical, "src", "dead.rs")}
	if strings.Join(pkg.Unused, ",") != strings.Join(wantUnused, ",") {
		t.Errorf("Unused = %v, want %v", pkg.Unused, wantUnused)
	}
	if len(report.OutDirs) != 1 {
		t.Errorf("Expected one output directory, got %v", report.OutDirs)
	}
}

func TestBuildFailsWithoutOutDir(t *testing.T) {
	dir, metadataPath, _ := writeProject(t)
	planPath := filepath.Join(dir, "bad-plan.json")
	plan := fmt.Sprintf(`{"invocations": [{"package_name": "hello", "package_version": "0.1.0", "target_kind": ["bin"], "deps": [], "program": "sh", "args": ["-c", "exit 0", "src/main.rs"], "cwd": %q}]}`, dir)
	if err := os.WriteFile(planPath, []byte(plan), 0644); err != nil {
		t.Fatal(err)
	}

	_, stderr, code := runCLI(t, nil, "build", "--metadata", metadataPath, "--build-plan", planPath, "--all-targets")
	if code == 0 {
		t.Fatal("Expected non-zero exit code")
	}
	if !strings.Contains(stderr, "missing output directory") {
		t.Errorf("Expected out-dir error on stderr, got: %s", stderr)
	}
}

func TestBuildReportsPartialFailure(t *testing.T) {
	dir, metadataPath, _ := writeProject(t)
	outDir := filepath.Join(dir, "target", "debug", "deps")
	planPath := filepath.Join(dir, "partial-plan.json")
	plan := fmt.Sprintf(`{"invocations": [
  {"package_name": "hello", "package_version": "0.1.0", "target_kind": ["bin"], "deps": [],
   "program": "sh", "args": ["-c", "exit 0", "src/main.rs", "--out-dir", %[2]q], "cwd": %[1]q},
  {"package_name": "hello", "package_version": "0.1.0", "target_kind": ["example"], "deps": [],
   "program": "sh", "args": ["-c", "exit 1", "src/dead.rs", "--out-dir", %[2]q], "cwd": %[1]q}
]}`, dir, outDir)
	if err := os.WriteFile(planPath, []byte(plan), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runCLI(t, nil, "build", "--metadata", metadataPath, "--build-plan", planPath, "--all-targets", "-j", "2")
	if code == 0 {
		t.Fatalf("Expected non-zero exit code for a failed unit\nstdout: %s", stdout)
	}
	if !strings.Contains(stderr, "build failed") {
		t.Errorf("Expected build failure on stderr, got: %s", stderr)
	}

	var report struct {
		Build struct {
			Succeeded []int `json:"succeeded"`
			Failed    []int `json:"failed"`
		} `json:"build"`
		Affected []string `json:"affected"`
		Packages []struct {
			Used []string `json:"used"`
		} `json:"packages"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("Expected a report despite the failure: %v\nstdout: %s", err, stdout)
	}

	if fmt.Sprint(report.Build.Succeeded) != "[0]" || fmt.Sprint(report.Build.Failed) != "[1]" {
		t.Errorf("Build = %+v, want unit 0 succeeded and unit 1 failed", report.Build)
	}
	wantID := "path+file://" + dir + "#hello@0.1.0"
	if len(report.Affected) != 1 || report.Affected[0] != wantID {
		t.Errorf("Affected = %v, want [%s]", report.Affected, wantID)
	}

	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	mainRS := filepath.Join(canonical, "src", "main.rs")
	if len(report.Packages) != 1 || !slices.Contains(report.Packages[0].Used, mainRS) {
		t.Errorf("Expected %s among used sources, got %+v", mainRS, report.Packages)
	}
}

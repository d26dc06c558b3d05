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
// Package build provides the build command for crateaudit.
package build

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/crateaudit/audit"
	"bennypowers.dev/crateaudit/build"
	"bennypowers.dev/crateaudit/fs"
	"bennypowers.dev/crateaudit/intercept"
	"bennypowers.dev/crateaudit/internal/output"
	"bennypowers.dev/crateaudit/internal/project"
	"bennypowers.dev/crateaudit/metadata"
)

// Report is the output of the build command.
type Report struct {
	Root  metadata.PackageID `json:"root"`
	Build *build.Result      `json:"build"`
	// Affected lists packages built by failed units and their transitive
	// dependents in the graph.
	Affected []metadata.PackageID `json:"affected"`
	OutDirs  []string             `json:"outDirs"`
	Packages []audit.PackageFiles `json:"packages"`
}

// Cmd is the build cobra command that compiles a package while recording
// which source files each compiler invocation used.
var Cmd = &cobra.Command{
	Use:   "build",
	Short: "Build a Cargo package and report which sources were compiled",
	Long: `Build a Cargo package from its build plan, intercepting every compiler
invocation, then report for each package in the dependency graph which of
its .rs files were compiled and which were not.

Every unit is rebuilt so that no invocation escapes interception.`,
	Example: `  # Build the package in the current directory (needs nightly cargo)
  crateaudit build

  # Use a captured build plan, four jobs at a time
  crateaudit build --build-plan plan.json -j 4`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: run,
}

func init() {
	project.AddFlags(Cmd.Flags())
	Cmd.Flags().String("build-plan", "", "Read the build plan from a file instead of running cargo")
	Cmd.Flags().IntP("jobs", "j", 0, "Number of parallel compiler invocations (default: number of CPUs)")
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	osfs := fs.NewOSFileSystem()
	logger := slog.Default()

	proj, err := project.Load(ctx, osfs, project.OptionsFromConfig(), logger)
	if err != nil {
		return err
	}

	plan, err := loadPlan(cmd, osfs, proj)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to read working directory: %w", err)
	}

	// Compiler output goes to stderr so stdout stays valid JSON.
	runner := &build.ProcessRunner{Stdout: cmd.ErrOrStderr(), Stderr: cmd.ErrOrStderr()}
	ictx := intercept.NewContext()
	executor := intercept.New(cwd, ictx, osfs, runner, logger)

	orchestrator := &build.Orchestrator{
		Jobs:   viper.GetInt("jobs"),
		FS:     osfs,
		Logger: logger,
	}
	result, buildErr := orchestrator.Run(ctx, plan, executor)
	logger.Info("build finished",
		"units", len(plan.Invocations),
		"failed", len(result.Failed),
		"source_files", len(ictx.SourceFiles()))

	files, err := audit.New(osfs, logger).Files(proj.Metadata, proj.Graph, ictx)
	if err != nil {
		return errors.Join(buildErr, fmt.Errorf("failed to audit sources: %w", err))
	}

	failed := make([]build.Unit, 0, len(result.Failed))
	for _, i := range result.Failed {
		failed = append(failed, plan.Unit(i))
	}

	// The report covers the units that did run even when others failed.
	if err := output.JSON(osfs, cmd.OutOrStdout(), Report{
		Root:     proj.Root,
		Build:    result,
		Affected: audit.Affected(proj.Metadata, proj.Graph, failed, logger),
		OutDirs:  ictx.OutDirs(),
		Packages: files,
	}); err != nil {
		return errors.Join(buildErr, err)
	}
	if buildErr != nil {
		return fmt.Errorf("build failed: %w", buildErr)
	}
	return nil
}

func loadPlan(cmd *cobra.Command, osfs fs.FileSystem, proj *project.Project) (*build.Plan, error) {
	if path := viper.GetString("build-plan"); path != "" {
		plan, err := build.ParsePlanFile(osfs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read build plan: %w", err)
		}
		return plan, nil
	}

	root, ok := proj.Metadata.Package(proj.Root)
	if !ok {
		return nil, fmt.Errorf("root package %s missing from metadata", proj.Root)
	}
	var extra []string
	if pkg := viper.GetString("package"); pkg != "" {
		extra = append(extra, "--package", pkg)
	}
	if target := viper.GetString("target"); target != "" {
		extra = append(extra, "--target", target)
	}
	if features := viper.GetStringSlice("features"); len(features) > 0 {
		extra = append(extra, "--features", strings.Join(features, ","))
	}
	for _, flag := range []string{"all-features", "no-default-features", "offline"} {
		if viper.GetBool(flag) {
			extra = append(extra, "--"+flag)
		}
	}
	plan, err := build.PlanFromCargo(cmd.Context(), viper.GetString("cargo"), root.ManifestPath, extra...)
	if err != nil {
		return nil, fmt.Errorf("failed to read build plan: %w", err)
	}
	return plan, nil
}

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
// Package graph provides the graph command for crateaudit.
package graph

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/crateaudit/fs"
	"bennypowers.dev/crateaudit/internal/output"
	"bennypowers.dev/crateaudit/internal/project"
)

// Cmd is the graph cobra command that prints the filtered dependency graph.
var Cmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the dependency graph of a Cargo package",
	Long: `Print the dependency graph of a Cargo package as JSON.

Nodes are cargo package ids; node 0 is the root. Each edge carries the kind
of the declaration that produced it. By default build dependencies are
followed and dev dependencies are not, and platform-specific dependencies
are evaluated against the host.`,
	Example: `  # Graph of the package in the current directory
  crateaudit graph

  # Follow dev dependencies for every platform
  crateaudit graph --dev-deps --all-targets

  # Use previously captured metadata
  cargo metadata --format-version 1 > metadata.json
  crateaudit graph --metadata metadata.json --target x86_64-pc-windows-msvc`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: run,
}

func init() {
	project.AddFlags(Cmd.Flags())
}

func run(cmd *cobra.Command, args []string) error {
	osfs := fs.NewOSFileSystem()
	proj, err := project.Load(cmd.Context(), osfs, project.OptionsFromConfig(), slog.Default())
	if err != nil {
		return err
	}
	return output.JSON(osfs, cmd.OutOrStdout(), proj.Graph)
}

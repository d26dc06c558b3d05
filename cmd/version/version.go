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
// Package version implements `crateaudit version`.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"bennypowers.dev/crateaudit/fs"
	"bennypowers.dev/crateaudit/internal/output"
	"bennypowers.dev/crateaudit/internal/version"
)

// Cmd prints the crateaudit build information.
var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Print crateaudit build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		info := version.Get()
		switch format {
		case "text":
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info)
			return err
		case "json":
			return output.JSON(fs.NewOSFileSystem(), cmd.OutOrStdout(), info)
		}
		return fmt.Errorf("unknown version format %q (want text or json)", format)
	},
}

func init() {
	Cmd.Flags().StringP("format", "f", "text", "Output format: text or json")
}

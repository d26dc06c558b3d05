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
package project

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bennypowers.dev/crateaudit/metadata"
)

// AddFlags registers the project selection and inclusion policy flags.
func AddFlags(flags *pflag.FlagSet) {
	flags.StringP("package", "p", "", "Workspace member to use as the root package")
	flags.String("metadata", "", "Read cargo metadata JSON from a file instead of running cargo")

	flags.Bool("all-deps", false, "Include all kinds of dependencies")
	flags.Bool("no-deps", false, "Include only normal dependencies")
	flags.Bool("dev-deps", false, "Include dev dependencies")
	flags.Bool("all-targets", false, "Include dependencies for every target platform")
	flags.String("target", "", "Target triple to evaluate platform-specific dependencies for (default: host)")

	flags.StringSlice("features", nil, "Features to activate")
	flags.Bool("all-features", false, "Activate all available features")
	flags.Bool("no-default-features", false, "Do not activate the default feature")
	flags.Bool("offline", false, "Run cargo without accessing the network")
}

// OptionsFromConfig reads Options from viper. Flags must already be bound.
func OptionsFromConfig() Options {
	return Options{
		ManifestPath: viper.GetString("manifest-path"),
		Dir:          ".",
		MetadataFile: viper.GetString("metadata"),
		Cargo: metadata.Options{
			Cargo:             viper.GetString("cargo"),
			Features:          viper.GetStringSlice("features"),
			AllFeatures:       viper.GetBool("all-features"),
			NoDefaultFeatures: viper.GetBool("no-default-features"),
			Offline:           viper.GetBool("offline"),
		},
		Package:    viper.GetString("package"),
		AllDeps:    viper.GetBool("all-deps"),
		NoDeps:     viper.GetBool("no-deps"),
		DevDeps:    viper.GetBool("dev-deps"),
		AllTargets: viper.GetBool("all-targets"),
		Target:     viper.GetString("target"),
	}
}

// Copyright 2025 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pack

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/picodata/pike/build"
	"github.com/picodata/pike/cmd/flag"
	"github.com/picodata/pike/plugin"
)

var (
	conf  = plugin.PackParams{}
	debug bool

	Cmd = &cobra.Command{
		Use:     "pack",
		Short:   "Build the plugin and pack it into a shipping archive",
		Long:    `Build the plugin and pack it into <target-dir>/<profile>/<name>-<version>.tar.gz`,
		PreRunE: flag.BindEnv,
		RunE:    exec,
	}
)

func init() {
	flag.PluginPath(Cmd, &conf.ProjectDir)
	flag.TargetDir(Cmd, &conf.TargetDir)
	Cmd.Flags().BoolVar(&debug, "debug", false, "Pack the debug build instead of the release one")
	Cmd.Flags().BoolVar(&conf.NoBuild, "no-build", false, "Pack the existing build output")

	Cmd.SilenceUsage = true
}

func exec(cmd *cobra.Command, _ []string) error {
	conf.Profile = build.ProfileFor(!debug)
	if conf.Builder == nil {
		conf.Builder = &build.Cargo{}
	}

	archives, err := plugin.Pack(cmd.Context(), conf)
	if err != nil {
		return err
	}
	for _, a := range archives {
		slog.Info(
			"Plugin packed",
			slog.String("archive", a),
		)
	}
	return nil
}

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

package flag

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/picodata/pike/cluster"
)

const EnvPrefix = "PIKE"

func DataDir(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVar(conf, "data-dir", cluster.DefaultDataDir, "Path to the cluster data directory")
}

func PluginPath(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVar(conf, "plugin-path", cluster.DefaultPluginPath, "Path to the plugin project")
}

func PicodataPath(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVar(conf, "picodata-path", cluster.DefaultPicodataPath, "Path to the picodata binary")
}

func InstanceName(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVar(conf, "instance-name", "", "Name of a single instance to act on")
}

func TargetDir(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVar(conf, "target-dir", cluster.DefaultTargetDir, "Cargo target directory")
}

// BindEnv fills every flag the user did not pass on the command line from
// its PIKE_ environment variable, e.g. --data-dir from PIKE_DATA_DIR.
func BindEnv(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		if setErr := cmd.Flags().Set(f.Name, v.GetString(f.Name)); setErr != nil {
			err = errors.Wrapf(setErr, "invalid value of %s_%s", EnvPrefix,
				strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")))
		}
	})
	return err
}

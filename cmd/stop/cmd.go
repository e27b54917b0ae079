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

package stop

import (
	"github.com/spf13/cobra"

	"github.com/picodata/pike/cluster"
	"github.com/picodata/pike/cmd/flag"
)

var (
	conf = cluster.NewStopParams()

	Cmd = &cobra.Command{
		Use:     "stop",
		Short:   "Stop a picodata cluster",
		Long:    `Kill the instances of a cluster started by run, or a single instance with --instance-name`,
		PreRunE: flag.BindEnv,
		RunE:    exec,
	}
)

func init() {
	flag.DataDir(Cmd, &conf.DataDir)
	flag.PluginPath(Cmd, &conf.PluginPath)
	flag.InstanceName(Cmd, &conf.InstanceName)

	Cmd.SilenceUsage = true
}

func exec(cmd *cobra.Command, _ []string) error {
	return cluster.Stop(cmd.Context(), conf)
}

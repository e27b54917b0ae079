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

package run

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/picodata/pike/cluster"
	"github.com/picodata/pike/cmd/flag"
	"github.com/picodata/pike/common/metrics"
	"github.com/picodata/pike/common/process"
	"github.com/picodata/pike/topology"
)

const DefaultTopologyPath = "topology.toml"

var (
	conf         = cluster.NewParams(nil)
	topologyPath string
	metricsAddr  string

	Cmd = &cobra.Command{
		Use:     "run",
		Short:   "Run a picodata cluster",
		Long:    `Start every instance of the topology, wait for the cluster to converge and enable the plugins`,
		PreRunE: flag.BindEnv,
		RunE:    exec,
	}
)

func init() {
	Cmd.Flags().SortFlags = false

	Cmd.Flags().StringVarP(&topologyPath, "topology", "t", DefaultTopologyPath, "Path to the topology file")
	flag.DataDir(Cmd, &conf.DataDir)
	flag.PluginPath(Cmd, &conf.PluginPath)
	flag.PicodataPath(Cmd, &conf.PicodataPath)
	flag.TargetDir(Cmd, &conf.TargetDir)
	flag.InstanceName(Cmd, &conf.InstanceName)
	Cmd.Flags().StringVar(&conf.ConfigPath, "config-path", cluster.DefaultConfigPath, "Path to the picodata config file")
	Cmd.Flags().Uint16Var(&conf.BaseBinPort, "base-bin-port", cluster.DefaultBaseBinPort, "Base port of the binary protocol")
	Cmd.Flags().Uint16Var(&conf.BaseHTTPPort, "base-http-port", cluster.DefaultBaseHTTPPort, "Base port of the HTTP server")
	Cmd.Flags().Uint16Var(&conf.BasePgPort, "base-pg-port", cluster.DefaultBasePgPort, "Base port of the pgproto server")
	Cmd.Flags().BoolVar(&conf.DisablePluginInstall, "disable-install-plugins", false, "Do not enable plugins once the cluster is up")
	Cmd.Flags().BoolVar(&conf.Release, "release", false, "Build and run the release version of the plugin")
	Cmd.Flags().BoolVarP(&conf.Daemon, "daemon", "d", false, "Leave the instances running in the background")
	Cmd.Flags().BoolVar(&conf.DisableColors, "disable-colors", false, "Print instance logs without colors")
	Cmd.Flags().BoolVar(&conf.NoBuild, "no-build", false, "Skip building the plugin project")
	Cmd.Flags().BoolVar(&conf.WithWebAuth, "with-web-auth", false, "Require authentication in the web UI")
	Cmd.Flags().BoolVar(&conf.WithAudit, "with-audit", false, "Write an audit log next to every instance")
	Cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the cluster runs in the foreground")

	Cmd.SilenceUsage = true
}

func exec(cmd *cobra.Command, _ []string) error {
	t, err := topology.Parse(topologyPath)
	if err != nil {
		return err
	}
	conf.Topology = t

	ctx, cancel := runContext(cmd.Context(), conf.Daemon)
	defer cancel()

	instances, err := cluster.Run(ctx, conf)
	if err != nil {
		return err
	}
	if conf.Daemon || len(instances) == 0 {
		return nil
	}

	if metricsAddr != "" {
		m, err := metrics.Start(metricsAddr)
		if err != nil {
			cancel()
			_ = cluster.Supervise(ctx, instances)
			return err
		}
		defer m.Close()
	}

	slog.Info("Press Ctrl+C to stop the cluster")
	return cluster.Supervise(ctx, instances)
}

// runContext cancels on SIGINT or SIGTERM only in the foreground. A daemon run
// returns as soon as the cluster is up and leaves signals to the default
// handlers.
func runContext(parent context.Context, daemon bool) (context.Context, context.CancelFunc) {
	if daemon {
		return parent, func() {}
	}
	return process.SignalContext(parent)
}

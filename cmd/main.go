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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/picodata/pike/cmd/clean"
	"github.com/picodata/pike/cmd/config"
	"github.com/picodata/pike/cmd/plugin"
	"github.com/picodata/pike/cmd/run"
	"github.com/picodata/pike/cmd/stop"
	"github.com/picodata/pike/common/logging"
	"github.com/picodata/pike/common/process"
)

var (
	logLevelStr string
	rootCmd     = &cobra.Command{
		Use:               "pike",
		Short:             "Run picodata clusters for plugin development",
		Long:              `Run local picodata clusters, install plugins into them and pack plugins for shipping`,
		PersistentPreRunE: configureLogLevel,
		SilenceErrors:     true,
	}
)

type LogLevelError string

func (l LogLevelError) Error() string {
	return fmt.Sprintf("unknown log level (%s)", string(l))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevelStr, "log-level", "l", logging.DefaultLogLevel.String(), "Set logging level [debug|info|warn|error]")
	rootCmd.PersistentFlags().BoolVarP(&logging.LogJSON, "log-json", "j", false, "Print logs in JSON format")
	rootCmd.PersistentFlags().BoolVar(&process.PprofEnable, "profile", false, "Enable pprof profiler")
	rootCmd.PersistentFlags().StringVar(&process.PprofBindAddress, "profile-bind-address", "127.0.0.1:6060", "Bind address for pprof")

	rootCmd.AddCommand(run.Cmd)
	rootCmd.AddCommand(stop.Cmd)
	rootCmd.AddCommand(clean.Cmd)
	rootCmd.AddCommand(plugin.Cmd)
	rootCmd.AddCommand(config.Cmd)
}

func configureLogLevel(cmd *cobra.Command, _ []string) error {
	logLevel, err := logging.ParseLogLevel(logLevelStr)
	if err != nil {
		return LogLevelError(logLevelStr)
	}
	logging.LogLevel = logLevel
	logging.ConfigureLogger()
	return nil
}

func main() {
	code := 0
	process.DoWithLabels(context.Background(), map[string]string{
		"pike": "main",
	}, func() {
		if _, err := maxprocs.Set(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			code = 1
			return
		}

		profiler := process.RunProfiling()
		defer profiler.Close()

		if err := rootCmd.Execute(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			code = 1
		}
	})
	os.Exit(code)
}

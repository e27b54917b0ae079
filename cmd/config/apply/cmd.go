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

package apply

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/picodata/pike/admin"
	"github.com/picodata/pike/build"
	"github.com/picodata/pike/cluster"
	"github.com/picodata/pike/cmd/flag"
	"github.com/picodata/pike/common/process"
	"github.com/picodata/pike/plugin"
)

type Config struct {
	ConfigPath   string
	DataDir      string
	PluginPath   string
	PicodataPath string
	WaitTimeout  time.Duration
	Watch        bool
}

func NewConfig() Config {
	return Config{
		ConfigPath:   plugin.DefaultServiceConfig,
		DataDir:      cluster.DefaultDataDir,
		PluginPath:   cluster.DefaultPluginPath,
		PicodataPath: cluster.DefaultPicodataPath,
		WaitTimeout:  admin.DefaultAwaitTimeout,
	}
}

var (
	conf = NewConfig()

	Cmd = &cobra.Command{
		Use:     "apply",
		Short:   "Apply the plugin service config to a running cluster",
		Long:    `Send every setting of the plugin service config to the first instance of the cluster`,
		PreRunE: flag.BindEnv,
		RunE:    exec,
	}
)

func init() {
	Cmd.Flags().StringVarP(&conf.ConfigPath, "config-path", "c", conf.ConfigPath, "Path to the plugin service config")
	flag.DataDir(Cmd, &conf.DataDir)
	flag.PluginPath(Cmd, &conf.PluginPath)
	flag.PicodataPath(Cmd, &conf.PicodataPath)
	Cmd.Flags().DurationVar(&conf.WaitTimeout, "wait-timeout", conf.WaitTimeout, "How long to wait for the admin socket of the instance")
	Cmd.Flags().BoolVarP(&conf.Watch, "watch", "w", false, "Apply the config again every time the file changes")

	Cmd.SilenceUsage = true
}

func exec(cmd *cobra.Command, _ []string) error {
	ctx, cancel := process.SignalContext(cmd.Context())
	defer cancel()

	if err := Apply(ctx, conf); err != nil {
		return err
	}
	if !conf.Watch {
		return nil
	}

	slog.Info(
		"Watching plugin config for changes",
		slog.String("path", conf.configPath()),
	)
	return Watch(ctx, conf.configPath(), func() {
		if err := Apply(ctx, conf); err != nil {
			slog.Error(
				"Failed to apply plugin config",
				slog.Any("error", err),
			)
		}
	})
}

func (c Config) configPath() string {
	if filepath.IsAbs(c.ConfigPath) {
		return c.ConfigPath
	}
	return filepath.Join(c.PluginPath, c.ConfigPath)
}

func (c Config) socket() string {
	s := cluster.StopParams{DataDir: c.DataDir, PluginPath: c.PluginPath}
	return admin.SocketPath(filepath.Join(s.ClusterDir(), plugin.FirstInstance))
}

// Apply reads the project manifest and the service config and sends the
// settings to the first instance of the cluster.
func Apply(ctx context.Context, c Config) error {
	pkg, err := build.ReadPackage(c.PluginPath)
	if err != nil {
		return err
	}
	cfg, err := plugin.LoadServiceConfig(c.configPath())
	if err != nil {
		return err
	}

	installer := plugin.NewInstaller(admin.NewClient(c.PicodataPath))
	return installer.ApplyServiceConfig(ctx, pkg, cfg, c.socket(), c.WaitTimeout)
}

// Watch calls onChange after every write to path until ctx is done. The parent
// directory is watched so that editors replacing the file are noticed too.
func Watch(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "failed to watch %s", path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			slog.Debug(
				"Plugin config changed",
				slog.String("event", event.Op.String()),
			)
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn(
				"File watcher error",
				slog.Any("error", err),
			)
		}
	}
}

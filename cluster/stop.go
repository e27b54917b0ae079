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

package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/picodata/pike/admin"
	"github.com/picodata/pike/common/poll"
)

const (
	stopInterval = 100 * time.Millisecond
	stopTimeout  = 10 * time.Second
)

// ErrPidFileMissing is returned when an instance directory has no pid file.
var ErrPidFileMissing = errors.New("PID file does not exist")

type StopParams struct {
	DataDir    string
	PluginPath string
	// InstanceName restricts the stop to one instance.
	InstanceName string
}

func NewStopParams() StopParams {
	return StopParams{
		DataDir:    DefaultDataDir,
		PluginPath: DefaultPluginPath,
	}
}

func (p *StopParams) ClusterDir() string {
	return clusterDir(p.PluginPath, p.DataDir)
}

// Stop kills the instances of the cluster, or the one named by
// p.InstanceName. In whole-cluster mode only the negotiated names, which are
// symlinks, are visited so no process is stopped twice.
func Stop(ctx context.Context, p StopParams) error {
	clusterDir := p.ClusterDir()
	entries, err := os.ReadDir(clusterDir)
	if err != nil {
		return errors.Wrapf(err, "cluster data dir with path %s does not exist", clusterDir)
	}

	unlock, err := lockClusterDir(clusterDir)
	if err != nil {
		return err
	}
	defer unlock()

	if p.InstanceName != "" {
		slog.Info(
			fmt.Sprintf("stopping picodata cluster instance '%s'", p.InstanceName),
			slog.String("data-dir", filepath.Join(clusterDir, p.InstanceName)),
		)
		for _, e := range entries {
			if e.Name() == p.InstanceName {
				return stopInstance(ctx, clusterDir, e.Name())
			}
		}
		return errors.Errorf("failed to locate directory of the instance '%s'", p.InstanceName)
	}

	slog.Info(
		"stopping picodata cluster",
		slog.String("data-dir", p.DataDir),
	)
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 {
			continue
		}
		if err := stopInstance(ctx, clusterDir, e.Name()); err != nil {
			return err
		}
	}
	return nil
}

func stopInstance(ctx context.Context, clusterDir, name string) error {
	dir := filepath.Join(clusterDir, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return errors.Errorf("%s is not a directory", dir)
	}

	pidFile := filepath.Join(dir, pidFileName)
	if _, err := os.Stat(pidFile); err != nil {
		return errors.Wrapf(ErrPidFileMissing, "folder %s", dir)
	}
	pid, err := readPidFile(pidFile)
	if err != nil {
		return err
	}

	socket := admin.SocketPath(dir)
	if !admin.IsActive(socket) {
		slog.Info(fmt.Sprintf("stopping picodata instance: %s - %s", name, color.YellowString("SKIPPED")))
		return nil
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return errors.Wrapf(err, "failed to stop picodata instance with PID %d", pid)
	}

	err = poll.Until(ctx, stopInterval, stopTimeout, func() error {
		if admin.IsActive(socket) {
			return errors.Errorf("socket %s still accepts connections", socket)
		}
		return nil
	}, nil)
	if err != nil {
		slog.Warn(
			"Instance socket is still reachable after kill",
			slog.String("instance", name),
			slog.Any("error", err),
		)
	}

	slog.Info(fmt.Sprintf("stopping picodata instance: %s - %s", name, color.GreenString("OK")))
	return nil
}

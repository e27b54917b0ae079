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
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/picodata/pike/admin"
	"github.com/picodata/pike/common/poll"
	"github.com/picodata/pike/plugin"
)

const (
	leaderInterval = 100 * time.Millisecond
	leaderTimeout  = 15 * time.Second
)

// ErrClusterAlreadyRunning is returned when a whole-cluster run finds a
// reachable admin socket under the cluster directory.
var ErrClusterAlreadyRunning = errors.New("cluster has already started")

// Run starts the cluster described by params, or a single instance of it when
// params.InstanceName is set. The returned instances are owned by the caller.
func Run(ctx context.Context, params Params) ([]*Instance, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	p := params
	p.Topology = params.Topology.Clone()

	clusterDir, err := filepath.Abs(p.ClusterDir())
	if err != nil {
		return nil, err
	}

	if p.InstanceName != "" {
		if _, ok := admin.ActiveSocket(clusterDir, p.InstanceName); ok {
			slog.Info(fmt.Sprintf("running picodata instance %s - %s", p.InstanceName, color.YellowString("SKIPPED")))
			return nil, nil
		}
	} else if socket, err := admin.FindActiveSocket(clusterDir); err == nil {
		return nil, fmt.Errorf("%w, can connect via %s", ErrClusterAlreadyRunning, socket)
	} else if !errors.Is(err, admin.ErrNoActiveSocket) {
		return nil, err
	}

	unlock, err := lockClusterDir(clusterDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	pluginsDir, err := preparePlugins(ctx, &p, clusterDir)
	if err != nil {
		return nil, err
	}

	client := admin.NewClient(p.PicodataPath)
	l, err := newLauncher(ctx, &p, client, clusterDir, pluginsDir)
	if err != nil {
		return nil, err
	}

	if p.InstanceName != "" {
		return runInstance(ctx, l, p.InstanceName)
	}
	return runCluster(ctx, l)
}

func runCluster(ctx context.Context, l *launcher) ([]*Instance, error) {
	t := l.params.Topology
	slog.Info(fmt.Sprintf("Running the cluster with %s...", l.version))
	start := time.Now()

	var instances []*Instance
	var id uint16
	for _, tier := range t.TierNames() {
		for range t.Tiers[tier].Instances() {
			id++
			inst, err := l.launch(ctx, id, tier)
			if err != nil {
				return nil, rollback(instances, err)
			}
			instances = append(instances, inst)
			slog.Info(fmt.Sprintf("i%d - started", id))
		}
	}

	if err := waitForLeader(ctx, l.client, l.clusterDir); err != nil {
		return nil, rollback(instances, err)
	}

	applyWebAuth(ctx, l.client, l.clusterDir, l.params.WithWebAuth)

	if !l.params.DisablePluginInstall && len(t.Plugins) > 0 {
		if l.pluginsDir == "" {
			return nil, rollback(instances, errors.New("failed to enable plugins: directory with plugins is missing"))
		}
		slog.Info("Enabling plugins...")
		if err := plugin.NewInstaller(l.client).Enable(ctx, t, l.clusterDir); err != nil {
			return nil, rollback(instances, errors.Wrap(err, "failed to enable plugins"))
		}
	}

	slog.Info(
		"Picodata cluster has started",
		slog.Duration("launch-time", time.Since(start).Round(time.Millisecond)),
		slog.Int("total-instances", len(instances)),
	)
	return instances, nil
}

// rollback kills and reaps every spawned instance so that a failed run leaves
// no process behind.
func rollback(instances []*Instance, cause error) error {
	var errs error
	for _, inst := range instances {
		errs = multierr.Append(errs, inst.Kill())
	}
	for _, inst := range instances {
		_ = inst.Wait()
	}
	if errs != nil {
		slog.Error(
			"Failed to kill picodata instances",
			slog.Any("error", errs),
		)
	}
	return cause
}

func runInstance(ctx context.Context, l *launcher, name string) ([]*Instance, error) {
	entries, err := os.ReadDir(l.clusterDir)
	if err != nil {
		return nil, errors.Wrapf(err, "cluster data dir with path %s does not exist", l.clusterDir)
	}

	slog.Info(
		fmt.Sprintf("running picodata cluster instance '%s'", name),
		slog.String("data-dir", filepath.Join(l.clusterDir, name)),
	)

	found := false
	for _, e := range entries {
		if e.Name() == name {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Errorf("failed to locate directory of the instance '%s'", name)
	}

	dirName := name
	if target, err := os.Readlink(filepath.Join(l.clusterDir, name)); err == nil {
		dirName = filepath.Base(target)
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(dirName, "i"), 10, 16)
	if err != nil || !strings.HasPrefix(dirName, "i") {
		return nil, errors.Errorf("failed to recover instance id from directory name '%s'", dirName)
	}

	tier, err := l.params.Topology.TierOf(uint16(id))
	if err != nil {
		return nil, err
	}

	inst, err := l.launch(ctx, uint16(id), tier)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("running picodata instance %s - %s", name, color.GreenString("OK")))

	applyWebAuth(ctx, l.client, l.clusterDir, l.params.WithWebAuth)
	return []*Instance{inst}, nil
}

// waitForLeader polls until a raft leader is elected. Not seeing a leader
// before the deadline is only logged.
func waitForLeader(ctx context.Context, client *admin.Client, clusterDir string) error {
	slog.Info(
		"Waiting for cluster RAFT leader to be negotiated",
		slog.Duration("timeout", leaderTimeout),
	)

	err := poll.Until(ctx, leaderInterval, leaderTimeout, func() error {
		id, err := client.LeaderID(ctx, clusterDir)
		if err != nil {
			return poll.Permanent(err)
		}
		if id == 0 {
			return errors.New("leader is not elected yet")
		}
		slog.Info(
			"Cluster leader is elected",
			slog.Uint64("leader-id", id),
		)
		return nil
	}, nil)

	if errors.Is(err, poll.ErrTimeout) {
		slog.Warn(
			"Cluster RAFT leader was not negotiated in time",
			slog.Duration("timeout", leaderTimeout),
		)
		return nil
	}
	return err
}

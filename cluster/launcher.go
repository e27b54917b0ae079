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
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/picodata/pike/admin"
	"github.com/picodata/pike/common/metrics"
	"github.com/picodata/pike/common/poll"
	"github.com/picodata/pike/template"
)

const (
	instanceReadyInterval = 100 * time.Millisecond
	instanceReadyTimeout  = 10 * time.Second

	logFileName   = "picodata.log"
	auditFileName = "audit.log"
)

// ErrInstanceNotReady is returned when a spawned instance does not become
// Online before the deadline.
var ErrInstanceNotReady = errors.New("instance did not become Online")

// launcher spawns the instances of one run.
type launcher struct {
	params     *Params
	client     *admin.Client
	renderer   *template.Renderer
	flags      flagNames
	version    string
	tierConfig string
	clusterDir string
	pluginsDir string
	out        io.Writer
}

func newLauncher(ctx context.Context, p *Params, client *admin.Client, clusterDir, pluginsDir string) (*launcher, error) {
	version, err := PicodataVersion(ctx, p.PicodataPath)
	if err != nil {
		return nil, err
	}

	tierConfig, err := MergedTierConfig(filepath.Join(p.PluginPath, p.ConfigPath), p.Topology.Tiers)
	if err != nil {
		return nil, err
	}

	return &launcher{
		params:     p,
		client:     client,
		renderer:   template.NewRenderer(),
		flags:      flagsFor(version),
		version:    version,
		tierConfig: tierConfig,
		clusterDir: clusterDir,
		pluginsDir: pluginsDir,
		out:        os.Stdout,
	}, nil
}

func (l *launcher) environment(id uint16) (map[string]string, error) {
	env, err := l.renderer.RenderAll(l.params.Topology.Environment, map[string]any{"instance_id": id})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to render environment of instance %d", id)
	}
	return env, nil
}

func (l *launcher) args(dir, tier string, addrs addresses) []string {
	args := []string{
		"run",
		l.flags.InstanceDir, dir,
		l.flags.Listen, addrs.Bin.String(),
		"--peer", addrs.Peer.String(),
		"--http-listen", addrs.HTTP.String(),
		"--pg-listen", addrs.Pg.String(),
		"--tier", tier,
		"--config-parameter", "cluster.tier=" + l.tierConfig,
	}

	configPath := filepath.Join(l.params.PluginPath, l.params.ConfigPath)
	if _, err := os.Stat(configPath); err == nil {
		args = append(args, "--config", configPath)
	} else {
		slog.Warn(
			"Couldn't locate picodata config, skipping",
			slog.String("path", configPath),
		)
	}

	if l.pluginsDir != "" {
		args = append(args, "--plugin-dir", l.pluginsDir)
	}
	if l.params.Daemon {
		args = append(args, "--log", filepath.Join(dir, logFileName))
	}
	if l.params.WithAudit {
		args = append(args, "--audit", filepath.Join(dir, auditFileName))
	}
	return args
}

// launch spawns instance id of the tier and waits for it to become Online.
func (l *launcher) launch(ctx context.Context, id uint16, tier string) (*Instance, error) {
	name := fmt.Sprintf("i%d", id)
	dir := filepath.Join(l.clusterDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create instance data dir")
	}

	env, err := l.environment(id)
	if err != nil {
		return nil, err
	}
	firstEnv, err := l.environment(1)
	if err != nil {
		return nil, err
	}
	addrs, err := resolveAddresses(l.params, id, env, firstEnv)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(l.params.PicodataPath, l.args(dir, tier, addrs)...) //nolint:gosec
	cmd.Env = os.Environ()
	for _, k := range slices.Sorted(maps.Keys(env)) {
		cmd.Env = append(cmd.Env, k+"="+env[k])
	}

	var outputs []io.Reader
	if l.params.Daemon {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, stdout, stderr)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start picodata instance: %d", id)
	}

	var logs *logCapture
	if !l.params.Daemon {
		if logs, err = startLogCapture(name, filepath.Join(dir, logFileName), !l.params.DisableColors, l.out, outputs...); err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, err
		}
	}

	inst := newInstance(Properties{
		Name:     name,
		ID:       id,
		Tier:     tier,
		DataDir:  dir,
		BinPort:  addrs.Bin.Port(),
		HTTPPort: addrs.HTTP.Port(),
		PgPort:   addrs.Pg.Port(),
	}, cmd, l.params.Daemon, logs)

	if err := l.awaitOnline(ctx, inst); err != nil {
		_ = inst.Kill()
		_ = inst.Wait()
		return nil, err
	}
	metrics.InstanceLaunchLatency.Observe(time.Since(start).Seconds())

	if err := inst.writePidFile(); err != nil {
		_ = inst.Kill()
		_ = inst.Wait()
		return nil, err
	}
	return inst, nil
}

// awaitOnline polls the instance until it reports its negotiated name and the
// Online state, then links the negotiated name to the instance directory.
func (l *launcher) awaitOnline(ctx context.Context, inst *Instance) error {
	dir := inst.props.DataDir
	var realName string

	err := poll.Until(ctx, instanceReadyInterval, instanceReadyTimeout, func() error {
		select {
		case <-inst.Exited():
			return poll.Permanent(errors.Errorf("picodata instance %s exited: %v", inst.Name(), inst.waitErr))
		default:
		}

		name, err := l.client.InstanceName(ctx, dir)
		if err != nil {
			return errors.Wrap(err, "failed to get name of the instance")
		}
		state, err := l.client.InstanceState(ctx, dir)
		if err != nil {
			return err
		}
		if state != admin.StateOnline {
			slog.Info(fmt.Sprintf("Waiting for '%s' to become 'Online'", name))
			return errors.Errorf("instance %s is %s", name, state)
		}
		realName = name
		return nil
	}, func(err error, _ time.Duration) {
		slog.Debug(
			"Instance is not ready yet",
			slog.String("instance", inst.Name()),
			slog.Any("error", err),
		)
	})
	if errors.Is(err, poll.ErrTimeout) {
		return errors.Wrapf(ErrInstanceNotReady, "instance %s: %v", inst.Name(), err)
	}
	if err != nil {
		return err
	}

	if realName != inst.Name() {
		link := filepath.Join(l.clusterDir, realName)
		_ = os.Remove(link)
		if err := os.Symlink(filepath.Base(dir), link); err != nil {
			return errors.Wrap(err, "failed to create symlink to instance dir")
		}
		inst.rename(realName)
	}
	return nil
}

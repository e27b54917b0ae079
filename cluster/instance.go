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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/picodata/pike/common/metrics"
)

const pidFileName = "pid"

// Properties describe a launched instance.
type Properties struct {
	// Name is the name negotiated with the cluster, e.g. default_1_1.
	Name     string
	ID       uint16
	Tier     string
	DataDir  string
	BinPort  uint16
	HTTPPort uint16
	PgPort   uint16
}

// Instance is a picodata process spawned by the orchestrator. Foreground
// instances must be waited for with Wait or Close, daemon instances outlive
// the orchestrator.
type Instance struct {
	props  Properties
	cmd    *exec.Cmd
	daemon bool
	logs   *logCapture

	exited  chan struct{}
	waitErr error
}

func newInstance(props Properties, cmd *exec.Cmd, daemon bool, logs *logCapture) *Instance {
	i := &Instance{
		props:  props,
		cmd:    cmd,
		daemon: daemon,
		logs:   logs,
		exited: make(chan struct{}),
	}
	metrics.RunningInstances.Inc()
	go i.monitor()
	return i
}

func (i *Instance) monitor() {
	defer close(i.exited)
	defer metrics.RunningInstances.Dec()

	// the pipes must be fully read before cmd.Wait closes them
	var logErr error
	if i.logs != nil {
		logErr = i.logs.wait()
	}
	i.waitErr = i.cmd.Wait()
	if i.waitErr == nil && logErr != nil {
		i.waitErr = errors.Wrap(logErr, "failed to capture instance logs")
	}
}

func (i *Instance) Properties() Properties {
	return i.props
}

func (i *Instance) Name() string {
	return i.props.Name
}

func (i *Instance) Pid() int {
	return i.cmd.Process.Pid
}

func (i *Instance) Daemon() bool {
	return i.daemon
}

// Exited is closed once the process has exited and its logs are flushed.
func (i *Instance) Exited() <-chan struct{} {
	return i.exited
}

// Kill sends SIGKILL to the process. Killing an exited process is not an error.
func (i *Instance) Kill() error {
	if err := i.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrapf(err, "failed to kill picodata instance %s", i.props.Name)
	}
	return nil
}

// Wait blocks until the process exits and returns its exit error.
func (i *Instance) Wait() error {
	<-i.exited
	return i.waitErr
}

// Close waits for a foreground instance. It returns immediately for daemons.
func (i *Instance) Close() error {
	if i.daemon {
		return nil
	}
	return i.Wait()
}

func (i *Instance) rename(name string) {
	i.props.Name = name
	if i.logs != nil {
		i.logs.rename(name)
	}
}

func (i *Instance) writePidFile() error {
	p := filepath.Join(i.props.DataDir, pidFileName)
	if err := os.WriteFile(p, []byte(fmt.Sprintf("%d\n", i.Pid())), 0o644); err != nil { //nolint:gosec
		return errors.Wrapf(err, "failed to write pid file %s", p)
	}
	return nil
}

func readPidFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read the PID file")
	}
	line, _, _ := strings.Cut(string(content), "\n")
	if strings.TrimSpace(line) == "" {
		return 0, errors.Errorf("PID file %s is empty", path)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse PID from file %s", path)
	}
	return pid, nil
}

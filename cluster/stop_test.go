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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picodata/pike/admin"
	"github.com/picodata/pike/internal/picodatatest"
)

const singleTier = `
[tier.default]
replicasets = 1
replication_factor = 2
`

func stopParamsFor(p Params) StopParams {
	s := NewStopParams()
	s.PluginPath = p.PluginPath
	s.DataDir = p.DataDir
	return s
}

func TestStop(t *testing.T) {
	p := newTestParams(t, picodatatest.Install(t, picodatatest.Options{}), singleTier)
	instances := startCluster(t, p)

	require.NoError(t, Stop(context.Background(), stopParamsFor(p)))
	for _, inst := range instances {
		assert.Error(t, waitExited(t, inst))
		assert.False(t, admin.IsActive(admin.SocketPath(inst.Properties().DataDir)))
	}

	// a stopped cluster is skipped
	assert.NoError(t, Stop(context.Background(), stopParamsFor(p)))
}

func TestStop_RestartSingleInstance(t *testing.T) {
	p := newTestParams(t, picodatatest.Install(t, picodatatest.Options{}), singleTier)
	instances := startCluster(t, p)
	clusterDir := filepath.Dir(instances[0].Properties().DataDir)
	firstPid := readPid(t, filepath.Join(clusterDir, "i1"))
	secondPid := readPid(t, filepath.Join(clusterDir, "i2"))

	s := stopParamsFor(p)
	s.InstanceName = "default_1_2"
	require.NoError(t, Stop(context.Background(), s))
	assert.Error(t, waitExited(t, instances[1]))
	assert.True(t, admin.IsActive(admin.SocketPath(filepath.Join(clusterDir, "i1"))))

	p.InstanceName = "default_1_2"
	restarted, err := Run(context.Background(), p)
	require.NoError(t, err)
	t.Cleanup(func() { killAll(restarted) })
	require.Len(t, restarted, 1)

	props := restarted[0].Properties()
	assert.Equal(t, "default_1_2", props.Name)
	assert.EqualValues(t, 2, props.ID)
	assert.Equal(t, "default", props.Tier)
	assert.Equal(t, filepath.Join(clusterDir, "i2"), props.DataDir)

	assert.Equal(t, firstPid, readPid(t, filepath.Join(clusterDir, "i1")))
	assert.NotEqual(t, secondPid, readPid(t, filepath.Join(clusterDir, "i2")))
	assert.Equal(t, restarted[0].Pid(), readPid(t, filepath.Join(clusterDir, "i2")))

	// a running instance is left alone
	p.InstanceName = "default_1_1"
	again, err := Run(context.Background(), p)
	assert.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, firstPid, readPid(t, filepath.Join(clusterDir, "i1")))
}

func TestRun_UnknownInstance(t *testing.T) {
	p := newTestParams(t, picodatatest.Install(t, picodatatest.Options{}), singleTier)
	startCluster(t, p)

	p.InstanceName = "default_1_9"
	_, err := Run(context.Background(), p)
	assert.ErrorContains(t, err, "failed to locate directory of the instance 'default_1_9'")
}

func TestStop_Errors(t *testing.T) {
	dir := t.TempDir()
	p := StopParams{PluginPath: dir, DataDir: "tmp"}

	err := Stop(context.Background(), p)
	assert.ErrorContains(t, err, "does not exist")

	clusterDir := p.ClusterDir()
	require.NoError(t, os.MkdirAll(filepath.Join(clusterDir, "i1"), 0o755))
	require.NoError(t, os.Symlink("i1", filepath.Join(clusterDir, "default_1_1")))

	p.InstanceName = "default_1_7"
	assert.ErrorContains(t, Stop(context.Background(), p), "failed to locate directory of the instance 'default_1_7'")

	p.InstanceName = ""
	assert.ErrorIs(t, Stop(context.Background(), p), ErrPidFileMissing)

	require.NoError(t, os.WriteFile(filepath.Join(clusterDir, "i1", pidFileName), []byte("12345\n"), 0o644))
	assert.NoError(t, Stop(context.Background(), p), "instance without a live socket is skipped")
}

func TestClean(t *testing.T) {
	p := newTestParams(t, picodatatest.Install(t, picodatatest.Options{}), singleTier)
	instances := startCluster(t, p)

	require.NoError(t, Clean(context.Background(), stopParamsFor(p)))
	for _, inst := range instances {
		assert.Error(t, waitExited(t, inst))
	}
	assert.NoDirExists(t, filepath.Join(p.PluginPath, p.DataDir))

	// nothing left to remove
	assert.NoError(t, Clean(context.Background(), stopParamsFor(p)))
}

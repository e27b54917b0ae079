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

package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `
pre_install_sql = [
    'CREATE TABLE "t" ("id" INT PRIMARY KEY);',
    "ALTER SYSTEM SET param = 'value';",
    '''
    ALTER SYSTEM SET multiline = 'test';
    '''
]

[tier.default]
replicasets = 2
replication_factor = 2

[tier.compute]
replicasets = 1
replication_factor = 3

[plugin.weather_cache]
migration_context = [
    { name = "example_name", value = "example_value" },
]

[plugin.weather_cache.service.main]
tiers = ["default"]

[enviroment]
PICODATA_IPROTO_LISTEN = "127.0.0.1:{{ instance_id | plus: 3300 }}"
`

func TestDecode(t *testing.T) {
	topo, err := Decode([]byte(sampleTopology))
	require.NoError(t, err)

	assert.Equal(t, Tier{Replicasets: 2, ReplicationFactor: 2}, topo.Tiers["default"])
	assert.Equal(t, Tier{Replicasets: 1, ReplicationFactor: 3}, topo.Tiers["compute"])

	require.Contains(t, topo.Plugins, "weather_cache")
	plugin := topo.Plugins["weather_cache"]
	assert.False(t, plugin.IsExternal())
	assert.Equal(t, []MigrationContextVar{{Name: "example_name", Value: "example_value"}}, plugin.MigrationContext)
	assert.Equal(t, []string{"default"}, plugin.Services["main"].Tiers)

	assert.Equal(t, "127.0.0.1:{{ instance_id | plus: 3300 }}", topo.Environment["PICODATA_IPROTO_LISTEN"])

	require.Len(t, topo.PreInstallSQL, 3)
	assert.Equal(t, `CREATE TABLE "t" ("id" INT PRIMARY KEY);`, topo.PreInstallSQL[0])
	assert.Equal(t, "ALTER SYSTEM SET param = 'value';", topo.PreInstallSQL[1])
	assert.Contains(t, topo.PreInstallSQL[2], "ALTER SYSTEM SET multiline = 'test';")
}

func TestDecodeErrors(t *testing.T) {
	for _, test := range []struct {
		name    string
		content string
		errText string
	}{
		{"missing tiers", `[plugin.p]`, "missing field `tier`"},
		{"missing replication factor", "[tier.default]\nreplicasets = 1", "replication_factor"},
		{"type mismatch", "[tier.default]\nreplicasets = \"two\"\nreplication_factor = 1", "replicasets"},
		{"replicasets overflow", "[tier.default]\nreplicasets = 256\nreplication_factor = 1", "expected an integer in 0..255, got 256"},
		{"negative replication factor", "[tier.default]\nreplicasets = 1\nreplication_factor = -1", "replication_factor"},
		{"float replicasets", "[tier.default]\nreplicasets = 1.5\nreplication_factor = 1", "replicasets"},
		{"malformed", "[tier.default", ""},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode([]byte(test.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.errText)
		})
	}
}

func TestDecodeUnknownFieldsAreAccepted(t *testing.T) {
	topo, err := Decode([]byte(`
unknown_root = 1

[tier.default]
replicasets = 1
replication_factor = 1
color = "blue"
`))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), topo.InstanceCount())
}

func TestInstanceNumberingFollowsTierNames(t *testing.T) {
	topo := &Topology{Tiers: map[string]Tier{
		"B": {Replicasets: 1, ReplicationFactor: 3},
		"A": {Replicasets: 2, ReplicationFactor: 2},
	}}

	assert.Equal(t, []string{"A", "B"}, topo.TierNames())
	assert.Equal(t, uint16(7), topo.InstanceCount())

	for id := uint16(1); id <= 4; id++ {
		tier, err := topo.TierOf(id)
		require.NoError(t, err)
		assert.Equal(t, "A", tier)
	}
	for id := uint16(5); id <= 7; id++ {
		tier, err := topo.TierOf(id)
		require.NoError(t, err)
		assert.Equal(t, "B", tier)
	}

	_, err := topo.TierOf(8)
	assert.Error(t, err)
}

func TestZeroWidthTier(t *testing.T) {
	topo := &Topology{Tiers: map[string]Tier{
		"a_empty": {Replicasets: 0, ReplicationFactor: 3},
		"b":       {Replicasets: 1, ReplicationFactor: 1},
	}}

	tier, err := topo.TierOf(1)
	require.NoError(t, err)
	assert.Equal(t, "b", tier)
}

func TestResolvePluginVersionsIsLexicographic(t *testing.T) {
	pluginsDir := t.TempDir()
	for _, version := range []string{"0.1.0", "0.2.0", "0.10.0"} {
		require.NoError(t, os.MkdirAll(filepath.Join(pluginsDir, "p", version), 0o755))
	}
	// Plain files are not versions
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, "p", "zz.tar.gz"), nil, 0o644))

	topo := &Topology{Plugins: map[string]*Plugin{"p": {}}}
	require.NoError(t, topo.ResolvePluginVersions(pluginsDir))
	assert.Equal(t, "0.2.0", topo.Plugins["p"].Version)
}

func TestResolvePluginVersionsMissingDir(t *testing.T) {
	topo := &Topology{Plugins: map[string]*Plugin{"missing": {}}}
	err := topo.ResolvePluginVersions(t.TempDir())
	assert.ErrorContains(t, err, "does not exist")
}

func TestExternalPlugins(t *testing.T) {
	topo := &Topology{Plugins: map[string]*Plugin{
		"local":  {},
		"remote": {Path: "../remote.tar.gz"},
	}}
	assert.True(t, topo.HasExternalPlugins())
	assert.Equal(t, []string{"remote"}, topo.ExternalPlugins())

	clone := topo.Clone()
	clone.Plugins["local"].Version = "1.0.0"
	assert.Empty(t, topo.Plugins["local"].Version)
}

func TestDecodeTierBounds(t *testing.T) {
	topo, err := Decode([]byte("[tier.default]\nreplicasets = 255\nreplication_factor = 0\n"))
	require.NoError(t, err)
	assert.Equal(t, Tier{Replicasets: 255, ReplicationFactor: 0}, topo.Tiers["default"])
}

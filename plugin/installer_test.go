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

package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picodata/pike/admin"
	"github.com/picodata/pike/internal/picodatatest"
	"github.com/picodata/pike/topology"
)

func TestMain(m *testing.M) {
	picodatatest.MaybeRun()
	os.Exit(m.Run())
}

const sampleTopology = `
pre_install_sql = ['CREATE TABLE "t" ("id" INT PRIMARY KEY);']

[tier.default]
replicasets = 2
replication_factor = 2

[plugin.weather]
migration_context = [
    { name = "ttl", value = "10s" },
    { name = "owner", value = "o'brien" },
]

[plugin.weather.service.main]
tiers = ["default", "storage"]

[plugin.weather.service.api]
tiers = ["default"]

[plugin.audit]
`

func loadTopology(t *testing.T) *topology.Topology {
	t.Helper()
	top, err := topology.Decode([]byte(sampleTopology))
	require.NoError(t, err)
	top.Plugins["weather"].Version = "0.1.0"
	top.Plugins["audit"].Version = "1.2.3"
	return top
}

func TestStatements(t *testing.T) {
	s, err := NewStatements(`we"ird`, "0.1.0-rc.1")
	require.NoError(t, err)

	assert.Equal(t, `CREATE PLUGIN "we""ird" 0.1.0-rc.1;`, s.Create())
	assert.Equal(t, `ALTER PLUGIN "we""ird" 0.1.0-rc.1 SET migration_context.ttl='it''s';`, s.SetMigrationContext("ttl", "it's"))
	assert.Equal(t, `ALTER PLUGIN "we""ird" 0.1.0-rc.1 SET migration_context."my key"='v';`, s.SetMigrationContext("my key", "v"))
	assert.Equal(t, `ALTER PLUGIN "we""ird" MIGRATE TO 0.1.0-rc.1;`, s.MigrateTo())
	assert.Equal(t, `ALTER PLUGIN "we""ird" 0.1.0-rc.1 ADD SERVICE "main" TO TIER "default";`, s.AddService("main", "default"))
	assert.Equal(t, `ALTER PLUGIN "we""ird" 0.1.0-rc.1 ENABLE;`, s.Enable())
	assert.Equal(t, `ALTER PLUGIN "we""ird" 0.1.0-rc.1 SET main.interval='"5s"';`, s.SetServiceConfig("main", "interval", `"5s"`))

	_, err = NewStatements("p", "0.1.0; DROP TABLE t")
	assert.ErrorContains(t, err, "invalid plugin version")
	_, err = NewStatements("p", "")
	assert.ErrorContains(t, err, "invalid plugin version")
}

func TestQueries(t *testing.T) {
	queries, err := Queries(loadTopology(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		`CREATE TABLE "t" ("id" INT PRIMARY KEY);`,
		`CREATE PLUGIN "audit" 1.2.3;`,
		`ALTER PLUGIN "audit" MIGRATE TO 1.2.3;`,
		`ALTER PLUGIN "audit" 1.2.3 ENABLE;`,
		`CREATE PLUGIN "weather" 0.1.0;`,
		`ALTER PLUGIN "weather" 0.1.0 SET migration_context.ttl='10s';`,
		`ALTER PLUGIN "weather" 0.1.0 SET migration_context.owner='o''brien';`,
		`ALTER PLUGIN "weather" MIGRATE TO 0.1.0;`,
		`ALTER PLUGIN "weather" 0.1.0 ADD SERVICE "api" TO TIER "default";`,
		`ALTER PLUGIN "weather" 0.1.0 ADD SERVICE "main" TO TIER "default";`,
		`ALTER PLUGIN "weather" 0.1.0 ADD SERVICE "main" TO TIER "storage";`,
		`ALTER PLUGIN "weather" 0.1.0 ENABLE;`,
	}, queries)
}

func TestQueries_MissingVersion(t *testing.T) {
	top := loadTopology(t)
	top.Plugins["weather"].Version = ""

	_, err := Queries(top)
	assert.EqualError(t, err, "plugin version is missing for 'weather'")
}

func TestInstaller_Enable(t *testing.T) {
	clusterDir := t.TempDir()
	instanceDir := filepath.Join(clusterDir, FirstInstance)
	picodatatest.Serve(t, instanceDir, "default_1_1", picodatatest.Options{})
	installer := NewInstaller(admin.NewClient(picodatatest.Install(t, picodatatest.Options{})))

	top := loadTopology(t)
	require.NoError(t, installer.Enable(context.Background(), top, clusterDir))

	expected, err := Queries(top)
	require.NoError(t, err)
	assert.Equal(t, expected, picodatatest.Queries(t, instanceDir))
}

func TestInstaller_Tolerance(t *testing.T) {
	for _, test := range []struct {
		name    string
		message string
		err     string
	}{
		{"already exists", "plugin weather already exists", ""},
		{"already enabled", "plugin weather is already enabled", ""},
		{"other failure", "sbroad: invalid migration", `failed to execute picodata query ALTER PLUGIN "weather" MIGRATE TO 0.1.0;`},
	} {
		t.Run(test.name, func(t *testing.T) {
			clusterDir := t.TempDir()
			picodatatest.Serve(t, filepath.Join(clusterDir, FirstInstance), "default_1_1", picodatatest.Options{
				FailOn:      `ALTER PLUGIN "weather" MIGRATE`,
				FailMessage: test.message,
			})
			installer := NewInstaller(admin.NewClient(picodatatest.Install(t, picodatatest.Options{})))

			err := installer.Enable(context.Background(), loadTopology(t), clusterDir)
			if test.err == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, test.err)
			}
		})
	}
}

func TestInstaller_NoRunningInstance(t *testing.T) {
	installer := NewInstaller(admin.NewClient(picodatatest.Install(t, picodatatest.Options{})))

	err := installer.Enable(context.Background(), loadTopology(t), t.TempDir())
	assert.ErrorContains(t, err, "failed to execute picodata query")
}

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

package pack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picodata/pike/archive"
	"github.com/picodata/pike/build"
	"github.com/picodata/pike/plugin"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPackCmd(t *testing.T) {
	for _, test := range []struct {
		args            []string
		expectedConf    plugin.PackParams
		expectedProfile build.Profile
	}{
		{[]string{}, plugin.PackParams{ProjectDir: "./", TargetDir: "target"}, build.Release},
		{[]string{"--debug", "--no-build", "--plugin-path", "weather", "--target-dir", "out"},
			plugin.PackParams{ProjectDir: "weather", TargetDir: "out", NoBuild: true}, build.Debug},
	} {
		Cmd.SetArgs(test.args)
		Cmd.RunE = func(cmd *cobra.Command, args []string) error {
			return nil
		}
		require.NoError(t, Cmd.Execute())
		assert.Equal(t, test.expectedConf, conf)
		assert.Equal(t, test.expectedProfile, build.ProfileFor(!debug))
	}
}

func TestPackExistingBuild(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, build.ManifestFile), "[package]\nname = \"weather\"\nversion = \"0.3.0\"\n")
	out := filepath.Join(project, "target", "release", "weather", "0.3.0")
	writeFile(t, filepath.Join(out, archive.ManifestName), "name: weather\nversion: 0.3.0\n")
	writeFile(t, filepath.Join(out, archive.LibName("weather")), "ELF")

	conf = plugin.PackParams{}
	debug = false
	Cmd.RunE = exec
	Cmd.SetArgs([]string{"--no-build", "--plugin-path", project, "--target-dir", "target"})
	require.NoError(t, Cmd.Execute())

	packed := filepath.Join(project, "target", "release", "weather-0.3.0.tar.gz")
	assert.NoError(t, archive.Validate(packed))
}

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

	"github.com/pkg/errors"
)

// ResolvePluginVersions assigns every plugin the newest version found under
// pluginsDir/<plugin>. Versions are compared as plain strings, so "0.2.0" wins
// over "0.10.0".
func (t *Topology) ResolvePluginVersions(pluginsDir string) error {
	for _, name := range t.PluginNames() {
		version, err := newestVersion(filepath.Join(pluginsDir, name))
		if err != nil {
			return err
		}
		t.Plugins[name].Version = version
	}
	return nil
}

func newestVersion(pluginDir string) (string, error) {
	// os.ReadDir returns the entries sorted by file name
	entries, err := os.ReadDir(pluginDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Errorf("plugin directory %s does not exist", pluginDir)
		}
		return "", errors.Wrapf(err, "failed to list plugin directory %s", pluginDir)
	}

	newest := ""
	for _, entry := range entries {
		if entry.IsDir() {
			newest = entry.Name()
		}
	}
	if newest == "" {
		return "", errors.Errorf("plugin directory %s has no version subdirectories", pluginDir)
	}
	return newest, nil
}

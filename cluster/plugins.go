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

	"github.com/pkg/errors"

	"github.com/picodata/pike/build"
	"github.com/picodata/pike/plugin"
)

const externalPluginsDir = "plugins"

// preparePlugins returns the directory the instances load plugins from, or
// an empty string when the topology declares none. Plugin versions are
// resolved against it.
func preparePlugins(ctx context.Context, p *Params, clusterDir string) (string, error) {
	t := p.Topology
	m := &plugin.Materializer{
		Builder:   p.builder(),
		Profile:   p.BuildProfile(),
		TargetDir: p.TargetDir,
		NoBuild:   p.NoBuild,
	}

	var dir string
	switch {
	case plugin.IsProjectDir(p.PluginPath):
		dir = filepath.Join(p.PluginPath, build.OutputDir(p.TargetDir, p.BuildProfile()))
		if err := m.PrepareExternal(ctx, t, dir); err != nil {
			return "", err
		}
		if !p.NoBuild {
			if err := m.Builder.Build(ctx, p.PluginPath, p.BuildProfile(), p.TargetDir); err != nil {
				return "", err
			}
		}
	case t.HasExternalPlugins():
		dir = filepath.Join(clusterDir, externalPluginsDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "failed to create plugins working directory at %s", dir)
		}
		if err := m.PrepareExternal(ctx, t, dir); err != nil {
			return "", err
		}
	case len(t.Plugins) > 0:
		return "", errors.New("failed to prepare plugins: plugin directory is unknown. " +
			"If you use external plugins, ensure they are prepared or run from a pike plugin project")
	default:
		return "", nil
	}

	if err := t.ResolvePluginVersions(dir); err != nil {
		return "", err
	}
	return filepath.Abs(dir)
}

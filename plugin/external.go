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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"
	"github.com/pkg/errors"

	"github.com/picodata/pike/archive"
	"github.com/picodata/pike/build"
	"github.com/picodata/pike/topology"
)

const ManifestTemplate = "manifest.yaml.template"

// Kind classifies the path of an external plugin.
type Kind int

const (
	KindArchive Kind = iota
	KindShippingDir
	KindProject
)

func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "shipping archive"
	case KindShippingDir:
		return "shipping directory"
	case KindProject:
		return "plugin project"
	default:
		return "unknown"
	}
}

// IsProjectDir reports whether path is a plugin project: a Cargo.toml next to
// a manifest template at the root or in a direct subdirectory.
func IsProjectDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if !exists(filepath.Join(path, build.ManifestFile)) {
		return false
	}
	if exists(filepath.Join(path, ManifestTemplate)) {
		return true
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() && exists(filepath.Join(path, e.Name(), ManifestTemplate)) {
			return true
		}
	}
	return false
}

// IsShippingDir checks that path holds at least one <version>/manifest.yaml.
func IsShippingDir(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return errors.New("path is not a plugin shipping directory")
	}
	for _, version := range entries {
		if !version.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(path, version.Name(), archive.ManifestName))
		if err == nil && info.Mode().IsRegular() {
			return nil
		}
	}
	return errors.New("path does not match plugin dir structure")
}

// DetectKind classifies an external plugin path. Symlinks are rejected.
func DetectKind(path string) (Kind, error) {
	if info, err := os.Lstat(path); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return 0, errors.Errorf("symlink as external plugin path is not supported: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to query external plugin path metadata at %s", path)
	}

	switch {
	case info.Mode().IsRegular():
		if err := archive.Validate(path); err != nil {
			return 0, errors.Wrap(err, "external plugin path is an unknown file")
		}
		return KindArchive, nil
	case info.IsDir():
		if IsProjectDir(path) {
			return KindProject, nil
		}
		if err := IsShippingDir(path); err != nil {
			return 0, errors.Wrap(err, "external plugin path directory has invalid structure")
		}
		return KindShippingDir, nil
	default:
		return 0, errors.Errorf("unknown external plugin path type: '%s'", path)
	}
}

// Materializer loads external plugins into a plugin directory.
type Materializer struct {
	Builder   build.Builder
	Profile   build.Profile
	TargetDir string
	NoBuild   bool
}

// Materialize loads one external plugin of the given kind into dst.
func (m *Materializer) Materialize(ctx context.Context, name string, kind Kind, path, dst string) error {
	switch kind {
	case KindArchive:
		return errors.Wrapf(archive.Unpack(path, dst),
			"failed to unpack shipping archive for plugin '%s' from '%s'", name, path)
	case KindShippingDir:
		return errors.Wrapf(CopyTree(path, dst),
			"failed to copy shipping directory for plugin '%s' from '%s'", name, path)
	case KindProject:
		if !m.NoBuild {
			if err := m.Builder.Build(ctx, path, m.Profile, m.TargetDir); err != nil {
				return errors.Wrapf(err, "failed to build external cargo plugin '%s' at '%s'", name, path)
			}
		}
		src := filepath.Join(path, build.OutputDir(m.TargetDir, m.Profile), name)
		return errors.Wrapf(CopyTree(src, dst),
			"failed to copy built plugin '%s' from '%s' (profile %s)", name, src, m.Profile)
	default:
		return errors.Errorf("unsupported plugin path kind %d", kind)
	}
}

// PrepareExternal materializes every external plugin of the topology into
// dst. All paths are classified before anything is copied.
func (m *Materializer) PrepareExternal(ctx context.Context, t *topology.Topology, dst string) error {
	names := t.ExternalPlugins()
	if len(names) == 0 {
		return nil
	}

	slog.Info(
		"Loading external plugins",
		slog.Int("count", len(names)),
		slog.String("plugin-dir", dst),
	)

	kinds := make([]Kind, len(names))
	for i, name := range names {
		path := t.Plugins[name].Path
		kind, err := DetectKind(path)
		if err != nil {
			return errors.Wrapf(err, "failed to validate external path '%s' for plugin %s", path, name)
		}
		kinds[i] = kind
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create plugin dir %s", dst)
	}

	for i, name := range names {
		slog.Debug(
			"Materializing external plugin",
			slog.String("plugin", name),
			slog.String("kind", kinds[i].String()),
		)
		if err := m.Materialize(ctx, name, kinds[i], t.Plugins[name].Path, dst); err != nil {
			return err
		}
	}
	return nil
}

// CopyTree copies the directory src into dstDir, so that its contents end up
// in dstDir/<base of src>, overwriting existing files. Symlinks to files are
// dereferenced and symlinked directories are skipped.
func CopyTree(src, dstDir string) error {
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return errors.Errorf("path %s does not exist or is not a directory", src)
	}

	return copy.Copy(src, filepath.Join(dstDir, filepath.Base(src)), copy.Options{
		OnSymlink: func(p string) copy.SymlinkAction {
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				slog.Warn(
					"Skipping symlinked directory",
					slog.String("path", p),
				)
				return copy.Skip
			}
			return copy.Deep
		},
		OnDirExists: func(_, _ string) copy.DirExistsAction {
			return copy.Merge
		},
	})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

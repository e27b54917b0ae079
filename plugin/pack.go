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
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/picodata/pike/archive"
	"github.com/picodata/pike/build"
)

type PackParams struct {
	ProjectDir string
	TargetDir  string
	Profile    build.Profile
	NoBuild    bool
	Builder    build.Builder
}

func (p PackParams) buildDir() string {
	target := p.TargetDir
	if !filepath.IsAbs(target) {
		target = filepath.Join(p.ProjectDir, target)
	}
	return build.OutputDir(target, p.Profile)
}

// Pack builds the project and writes one shipping archive per plugin package
// into the build output directory. It returns the archive paths.
func Pack(ctx context.Context, p PackParams) ([]string, error) {
	if !p.NoBuild {
		if err := p.Builder.Build(ctx, p.ProjectDir, p.Profile, p.TargetDir); err != nil {
			return nil, errors.Wrapf(err, "building %s version of plugin", p.Profile)
		}
	}

	m, err := build.ReadManifest(p.ProjectDir)
	if err != nil {
		return nil, err
	}

	packages := []string{p.ProjectDir}
	if m.IsWorkspace() {
		packages = packages[:0]
		for _, member := range m.Workspace.Members {
			packages = append(packages, filepath.Join(p.ProjectDir, member))
		}
	}

	var archives []string
	for _, dir := range packages {
		a, err := packPackage(p.buildDir(), dir)
		if err != nil {
			return nil, err
		}
		archives = append(archives, a)
	}
	return archives, nil
}

func packPackage(buildDir, packageDir string) (string, error) {
	pkg, err := build.ReadPackage(packageDir)
	if err != nil {
		return "", err
	}

	src := filepath.Join(buildDir, pkg.Name, pkg.Version)
	dst := filepath.Join(buildDir, fmt.Sprintf("%s-%s.tar.gz", strings.ReplaceAll(pkg.Name, "-", "_"), pkg.Version))

	size, err := archive.PackDir(src, path.Join(pkg.Name, pkg.Version), dst)
	if err != nil {
		return "", errors.Wrapf(err, "failed to pack plugin %s", pkg.Name)
	}

	slog.Info(
		"Plugin packed",
		slog.String("archive", dst),
		slog.String("size", humanize.Bytes(uint64(size))),
	)
	return dst, nil
}

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

package build

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const ManifestFile = "Cargo.toml"

type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type Workspace struct {
	Members []string `toml:"members"`
}

// Manifest is the subset of Cargo.toml the orchestrator cares about.
type Manifest struct {
	Package   *Package   `toml:"package"`
	Workspace *Workspace `toml:"workspace"`
}

func (m *Manifest) IsWorkspace() bool {
	return m.Workspace != nil
}

// ReadManifest parses the Cargo.toml of the project living in dir.
func ReadManifest(dir string) (*Manifest, error) {
	content, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read Cargo.toml")
	}

	m := &Manifest{}
	if err := toml.Unmarshal(content, m); err != nil {
		return nil, errors.Wrap(err, "failed to parse Cargo.toml")
	}
	return m, nil
}

// ReadPackage returns the package section of dir/Cargo.toml.
func ReadPackage(dir string) (*Package, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if m.Package == nil || m.Package.Name == "" || m.Package.Version == "" {
		return nil, errors.Errorf("%s has no package name or version", filepath.Join(dir, ManifestFile))
	}
	return m.Package, nil
}

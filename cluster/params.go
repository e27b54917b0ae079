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

// Package cluster launches, supervises and stops local picodata clusters
// described by a topology.
package cluster

import (
	"math"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/picodata/pike/build"
	"github.com/picodata/pike/topology"
)

const (
	DefaultDataDir      = "./tmp"
	DefaultPluginPath   = "./"
	DefaultTargetDir    = "target"
	DefaultPicodataPath = "picodata"
	DefaultConfigPath   = "./picodata.yaml"
	DefaultBaseBinPort  = 3000
	DefaultBaseHTTPPort = 8000
	DefaultBasePgPort   = 5432

	clusterDirName = "cluster"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Params configures one Run. It is not modified by Run.
type Params struct {
	Topology *topology.Topology `validate:"required"`

	DataDir      string `validate:"required"`
	PluginPath   string `validate:"required"`
	TargetDir    string `validate:"required"`
	PicodataPath string `validate:"required"`
	ConfigPath   string

	BaseBinPort  uint16 `validate:"gt=0"`
	BaseHTTPPort uint16 `validate:"gt=0"`
	BasePgPort   uint16 `validate:"gt=0"`

	// InstanceName restricts the run to one instance of an existing cluster.
	InstanceName string

	Release              bool
	Daemon               bool
	DisablePluginInstall bool
	DisableColors        bool
	NoBuild              bool
	WithWebAuth          bool
	WithAudit            bool

	// Builder builds plugin projects, cargo when nil.
	Builder build.Builder `validate:"-"`
}

// NewParams returns the default parameters for running the topology.
func NewParams(t *topology.Topology) Params {
	return Params{
		Topology:     t,
		DataDir:      DefaultDataDir,
		PluginPath:   DefaultPluginPath,
		TargetDir:    DefaultTargetDir,
		PicodataPath: DefaultPicodataPath,
		ConfigPath:   DefaultConfigPath,
		BaseBinPort:  DefaultBaseBinPort,
		BaseHTTPPort: DefaultBaseHTTPPort,
		BasePgPort:   DefaultBasePgPort,
	}
}

func (p *Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.Wrap(err, "invalid run parameters")
	}

	instances := int(p.Topology.InstanceCount())
	for name, base := range map[string]uint16{
		"bin":  p.BaseBinPort,
		"http": p.BaseHTTPPort,
		"pg":   p.BasePgPort,
	} {
		if int(base)+instances > math.MaxUint16 {
			return errors.Errorf("base %s port %d leaves no room for %d instances", name, base, instances)
		}
	}
	return nil
}

// ClusterDir is the directory holding one subdirectory per instance.
func (p *Params) ClusterDir() string {
	return clusterDir(p.PluginPath, p.DataDir)
}

func (p *Params) BuildProfile() build.Profile {
	return build.ProfileFor(p.Release)
}

func (p *Params) builder() build.Builder {
	if p.Builder != nil {
		return p.Builder
	}
	return &build.Cargo{}
}

func clusterDir(pluginPath, dataDir string) string {
	if filepath.IsAbs(dataDir) {
		return filepath.Join(dataDir, clusterDirName)
	}
	return filepath.Join(pluginPath, dataDir, clusterDirName)
}

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
	"log/slog"
	"maps"
	"math"
	"os"
	"slices"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Tier is a named group of nodes sharing one replication configuration.
type Tier struct {
	Replicasets       uint8 `mapstructure:"replicasets"`
	ReplicationFactor uint8 `mapstructure:"replication_factor"`
}

// Instances is the number of nodes the tier contributes to the cluster.
func (t Tier) Instances() uint16 {
	return uint16(t.Replicasets) * uint16(t.ReplicationFactor)
}

type MigrationContextVar struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

type Service struct {
	Tiers []string `mapstructure:"tiers"`
}

type Plugin struct {
	MigrationContext []MigrationContextVar `mapstructure:"migration_context"`
	Services         map[string]Service    `mapstructure:"service"`

	// Path points to a plugin living outside the current project: a shipping
	// archive, a shipping directory or a plugin project.
	Path string `mapstructure:"path"`

	// Version is discovered from the plugin directory, never read from the file.
	Version string `mapstructure:"-"`
}

func (p *Plugin) IsExternal() bool {
	return p.Path != ""
}

// ServiceNames returns the plugin services in install order.
func (p *Plugin) ServiceNames() []string {
	return slices.Sorted(maps.Keys(p.Services))
}

type Topology struct {
	Tiers         map[string]Tier    `mapstructure:"tier"`
	Plugins       map[string]*Plugin `mapstructure:"plugin"`
	Environment   map[string]string  `mapstructure:"environment"`
	PreInstallSQL []string           `mapstructure:"pre_install_sql"`

	// Older topology files spell the section "enviroment".
	LegacyEnvironment map[string]string `mapstructure:"enviroment"`
}

// Parse reads a topology TOML file. Unknown fields are reported as warnings.
func Parse(path string) (*Topology, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read topology from %s", path)
	}

	t, err := Decode(content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse topology from %s", path)
	}
	return t, nil
}

// Decode parses topology TOML content.
func Decode(content []byte) (*Topology, error) {
	raw := map[string]any{}
	if err := toml.Unmarshal(content, &raw); err != nil {
		return nil, err
	}

	if err := checkRequired(raw); err != nil {
		return nil, err
	}

	t := &Topology{}
	md := mapstructure.Metadata{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: &md,
		Result:   t,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}

	for _, field := range md.Unused {
		slog.Warn(
			"Unknown field in topology TOML",
			slog.String("field", field),
		)
	}

	t.normalize()
	return t, nil
}

func checkRequired(raw map[string]any) error {
	tiers, ok := raw["tier"]
	if !ok {
		return errors.New("missing field `tier`")
	}

	tierMap, ok := tiers.(map[string]any)
	if !ok {
		return errors.Errorf("invalid type for `tier`: expected a table, got %T", tiers)
	}

	for name, tier := range tierMap {
		fields, ok := tier.(map[string]any)
		if !ok {
			return errors.Errorf("invalid type for tier %q: expected a table, got %T", name, tier)
		}
		for _, required := range []string{"replicasets", "replication_factor"} {
			value, ok := fields[required]
			if !ok {
				return errors.Errorf("missing field `%s` in tier %q", required, name)
			}
			// mapstructure truncates wider integers into uint8 silently
			if n, ok := value.(int64); !ok || n < 0 || n > math.MaxUint8 {
				return errors.Errorf("invalid value for `%s` in tier %q: expected an integer in 0..%d, got %v",
					required, name, math.MaxUint8, value)
			}
		}
	}
	return nil
}

func (t *Topology) normalize() {
	if t.Tiers == nil {
		t.Tiers = map[string]Tier{}
	}
	if t.Plugins == nil {
		t.Plugins = map[string]*Plugin{}
	}
	for name, p := range t.Plugins {
		if p == nil {
			t.Plugins[name] = &Plugin{}
		}
	}
	if t.Environment == nil {
		t.Environment = map[string]string{}
	}
	for k, v := range t.LegacyEnvironment {
		if _, ok := t.Environment[k]; !ok {
			t.Environment[k] = v
		}
	}
	t.LegacyEnvironment = nil
}

// TierNames returns the tier names in the order used to assign instance ids.
func (t *Topology) TierNames() []string {
	return slices.Sorted(maps.Keys(t.Tiers))
}

// PluginNames returns the plugin names in install order.
func (t *Topology) PluginNames() []string {
	return slices.Sorted(maps.Keys(t.Plugins))
}

// InstanceCount is the total number of nodes described by the topology.
func (t *Topology) InstanceCount() uint16 {
	var total uint16
	for _, tier := range t.Tiers {
		total += tier.Instances()
	}
	return total
}

// TierOf returns the tier owning the 1-based instance id.
func (t *Topology) TierOf(instanceID uint16) (string, error) {
	var upper uint16
	for _, name := range t.TierNames() {
		upper += t.Tiers[name].Instances()
		if instanceID <= upper {
			return name, nil
		}
	}
	return "", errors.Errorf("instance id %d is outside of the topology (%d instances)", instanceID, upper)
}

func (t *Topology) HasExternalPlugins() bool {
	for _, p := range t.Plugins {
		if p.IsExternal() {
			return true
		}
	}
	return false
}

// ExternalPlugins returns the names of the plugins declared with a path.
func (t *Topology) ExternalPlugins() []string {
	var names []string
	for _, name := range t.PluginNames() {
		if t.Plugins[name].IsExternal() {
			names = append(names, name)
		}
	}
	return names
}

// Clone returns a copy that can be mutated without affecting t.
func (t *Topology) Clone() *Topology {
	c := &Topology{
		Tiers:         maps.Clone(t.Tiers),
		Plugins:       make(map[string]*Plugin, len(t.Plugins)),
		Environment:   maps.Clone(t.Environment),
		PreInstallSQL: slices.Clone(t.PreInstallSQL),
	}
	for name, p := range t.Plugins {
		cp := *p
		cp.MigrationContext = slices.Clone(p.MigrationContext)
		cp.Services = maps.Clone(p.Services)
		c.Plugins[name] = &cp
	}
	return c
}

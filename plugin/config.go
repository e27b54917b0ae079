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
	"encoding/json"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/picodata/pike/build"
)

const DefaultServiceConfig = "plugin_config.yaml"

// ServiceConfig maps a service name to its settings.
type ServiceConfig map[string]map[string]any

// LoadServiceConfig reads a YAML service config file.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file at %s", path)
	}

	cfg := ServiceConfig{}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file at %s as yaml", path)
	}
	return cfg, nil
}

// ConfigQueries returns one statement per service setting, services and keys in name order.
func ConfigQueries(pkg *build.Package, cfg ServiceConfig) ([]string, error) {
	s, err := NewStatements(pkg.Name, pkg.Version)
	if err != nil {
		return nil, err
	}

	var queries []string
	for _, service := range slices.Sorted(maps.Keys(cfg)) {
		settings := cfg[service]
		for _, key := range slices.Sorted(maps.Keys(settings)) {
			value, err := json.Marshal(settings[key])
			if err != nil {
				return nil, errors.Wrapf(err, "failed to serialize the value with key %s", key)
			}
			queries = append(queries, s.SetServiceConfig(service, key, string(value)))
		}
	}
	return queries, nil
}

// ApplyServiceConfig waits for the socket and sends every setting of cfg in
// one console session.
func (i *Installer) ApplyServiceConfig(ctx context.Context, pkg *build.Package, cfg ServiceConfig,
	socket string, timeout time.Duration) error {
	queries, err := ConfigQueries(pkg, cfg)
	if err != nil {
		return err
	}

	console, err := i.client.Await(ctx, socket, timeout)
	if err != nil {
		return err
	}

	for _, query := range queries {
		slog.Info("picodata admin: " + query)
		if err := console.Send(query); err != nil {
			_, _ = console.Close()
			return err
		}
	}

	res, err := console.Close()
	if err != nil {
		return err
	}
	logOutput(res)
	if !res.Success() {
		return errors.Errorf("failed to apply service config: %s", strings.TrimSpace(res.Stderr))
	}

	slog.Info(
		"Plugin config successfully applied",
		slog.String("plugin", pkg.Name),
		slog.String("version", pkg.Version),
	)
	return nil
}

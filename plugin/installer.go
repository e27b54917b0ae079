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

// Package plugin installs plugins into a running cluster and prepares the
// plugin directory the cluster loads them from.
package plugin

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/picodata/pike/admin"
	"github.com/picodata/pike/topology"
)

// FirstInstance is the positional name of the node every activation statement is sent to.
const FirstInstance = "i1"

var toleratedPhrases = []string{"already enabled", "already exists"}

// Queries returns the activation statements for the topology in execution
// order: pre-install statements first, then every plugin in name order.
func Queries(t *topology.Topology) ([]string, error) {
	queries := append([]string{}, t.PreInstallSQL...)

	for _, name := range t.PluginNames() {
		p := t.Plugins[name]
		if p.Version == "" {
			return nil, errors.Errorf("plugin version is missing for '%s'", name)
		}

		s, err := NewStatements(name, p.Version)
		if err != nil {
			return nil, err
		}

		queries = append(queries, s.Create())
		for _, v := range p.MigrationContext {
			queries = append(queries, s.SetMigrationContext(v.Name, v.Value))
		}
		queries = append(queries, s.MigrateTo())
		for _, service := range p.ServiceNames() {
			for _, tier := range p.Services[service].Tiers {
				queries = append(queries, s.AddService(service, tier))
			}
		}
		queries = append(queries, s.Enable())
	}
	return queries, nil
}

type Installer struct {
	client *admin.Client
}

func NewInstaller(client *admin.Client) *Installer {
	return &Installer{client: client}
}

// Enable runs the activation statements against the first instance of the
// cluster, one console invocation per statement.
func (i *Installer) Enable(ctx context.Context, t *topology.Topology, clusterDir string) error {
	queries, err := Queries(t)
	if err != nil {
		return err
	}

	if len(t.PreInstallSQL) > 0 {
		slog.Info("Executing pre-install SQL scripts")
	}

	socket := admin.SocketPath(filepath.Join(clusterDir, FirstInstance))
	for _, query := range queries {
		if err := i.exec(ctx, socket, query); err != nil {
			return err
		}
	}

	for _, name := range t.PluginNames() {
		slog.Info(
			"Plugin has been enabled",
			slog.String("plugin", name),
			slog.String("version", t.Plugins[name].Version),
		)
	}
	return nil
}

func (i *Installer) exec(ctx context.Context, socket, query string) error {
	slog.Info("picodata admin: " + query)

	res, err := i.client.Exec(ctx, socket, query)
	if err != nil {
		return err
	}
	logOutput(res)

	if res.Success() || (res.ExitCode == 1 && tolerated(res)) {
		return nil
	}
	return errors.Errorf("failed to execute picodata query %s", query)
}

func tolerated(res admin.Result) bool {
	for _, phrase := range toleratedPhrases {
		if res.Contains(phrase) {
			return true
		}
	}
	return false
}

func logOutput(res admin.Result) {
	for _, out := range []string{res.Stdout, res.Stderr} {
		for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
			if line != "" {
				slog.Info("picodata admin: " + line)
			}
		}
	}
}

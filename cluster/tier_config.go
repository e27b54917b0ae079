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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/picodata/pike/topology"
)

// MergedTierConfig reads the `cluster.tier` section of the picodata config
// file at path and overrides the replication factor of every tier declared by
// the topology. The result is JSON suitable for `--config-parameter
// cluster.tier=...`. A missing or empty file is an empty config.
func MergedTierConfig(path string, tiers map[string]topology.Tier) (string, error) {
	root, err := readConfigRoot(path)
	if err != nil {
		return "", err
	}

	clusterSection, _ := root["cluster"].(map[string]any)
	tierParams, _ := clusterSection["tier"].(map[string]any)
	if tierParams == nil {
		tierParams = map[string]any{}
	}

	for name, value := range tierParams {
		if value == nil {
			tierParams[name] = map[string]any{}
		}
	}

	for name, tier := range tiers {
		switch entry := tierParams[name].(type) {
		case nil:
			tierParams[name] = map[string]any{"replication_factor": tier.ReplicationFactor}
		case map[string]any:
			entry["replication_factor"] = tier.ReplicationFactor
		}
	}

	merged, err := json.Marshal(tierParams)
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize cluster.tier to JSON")
	}
	return string(merged), nil
}

func readConfigRoot(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read picodata config at %s", path)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return map[string]any{}, nil
	}

	var root any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, errors.Wrapf(err, "invalid YAML in picodata config at %s", path)
	}

	m, ok := root.(map[string]any)
	if !ok {
		return nil, errors.Errorf("invalid root in picodata config at %s: expected YAML mapping object, got %s",
			path, describe(root))
	}
	return m, nil
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "sequence"
	default:
		return fmt.Sprintf("%T", v)
	}
}

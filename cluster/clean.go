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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Clean stops the cluster, ignoring failures, and removes its data directory.
func Clean(ctx context.Context, p StopParams) error {
	slog.Info("Clearing cluster data directory")

	if err := Stop(ctx, StopParams{DataDir: p.DataDir, PluginPath: p.PluginPath}); err != nil {
		slog.Debug(
			"Failed to stop cluster before clean",
			slog.Any("error", err),
		)
	}

	dataDir := p.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(p.PluginPath, dataDir)
	}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		slog.Warn(
			"Data directory does not exist",
			slog.String("data-dir", dataDir),
		)
		return nil
	}
	if err := os.RemoveAll(dataDir); err != nil {
		return errors.Wrapf(err, "failed to remove directory %s", dataDir)
	}

	slog.Info(
		"Successfully removed data directory",
		slog.String("data-dir", dataDir),
	)
	return nil
}

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

	"github.com/picodata/pike/admin"
)

const (
	enableWebAuthQuery  = "ALTER SYSTEM RESET jwt_secret;"
	disableWebAuthQuery = "ALTER SYSTEM SET jwt_secret = '';"
)

// applyWebAuth turns the web UI authentication on or off. Failures are logged.
func applyWebAuth(ctx context.Context, client *admin.Client, clusterDir string, enable bool) {
	query := disableWebAuthQuery
	if enable {
		query = enableWebAuthQuery
	}

	socket, err := admin.FindActiveSocket(clusterDir)
	if err == nil {
		_, err = client.RunQuery(ctx, socket, query)
	}
	if err != nil {
		slog.Warn(
			"Failed to apply WebUI auth setting",
			slog.String("query", query),
			slog.Any("error", err),
		)
		return
	}

	slog.Info(
		"WebUI auth configured",
		slog.Bool("enabled", enable),
	)
}

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
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// ErrPicodataNotFound is returned when the picodata binary cannot be executed.
var ErrPicodataNotFound = errors.New("picodata not found")

const notFoundBanner = `
  +----------------------------------------------------------+
  |                                                          |
  |   picodata is not installed on your system               |
  |                                                          |
  |   install it from https://picodata.io/download or pass   |
  |   the path to the binary with --picodata-path            |
  |                                                          |
  +----------------------------------------------------------+
`

// flagNames holds the spellings of the command line flags that changed
// between picodata releases.
type flagNames struct {
	InstanceDir string
	Listen      string
}

type flagGeneration struct {
	// marker is looked up in the `picodata --version` output.
	marker string
	names  flagNames
	legacy bool
}

var (
	currentFlags = flagNames{InstanceDir: "--instance-dir", Listen: "--iproto-listen"}

	flagGenerations = []flagGeneration{
		{
			marker: "picodata 24.6",
			names:  flagNames{InstanceDir: "--data-dir", Listen: "--listen"},
			legacy: true,
		},
	}
)

// flagsFor selects the flag spellings understood by the given picodata version.
func flagsFor(version string) flagNames {
	for _, g := range flagGenerations {
		if !strings.Contains(version, g.marker) {
			continue
		}
		if g.legacy {
			slog.Warn(
				"You are using an old version of picodata, it will not be supported in the next major release",
				slog.String("version", strings.TrimSpace(version)),
			)
		}
		return g.names
	}
	return currentFlags
}

// PicodataVersion returns the `--version` output of the binary.
func PicodataVersion(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "--version").Output() //nolint:gosec
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			fmt.Fprint(os.Stderr, notFoundBanner)
			return "", errors.Wrapf(ErrPicodataNotFound, "%s", binary)
		}
		return "", errors.Wrapf(err, "failed to get picodata version")
	}
	return strings.TrimSpace(string(out)), nil
}

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

// Package build drives the external build tool producing plugin artifacts.
package build

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type Profile string

const (
	Debug   Profile = "debug"
	Release Profile = "release"
)

func ProfileFor(release bool) Profile {
	if release {
		return Release
	}
	return Debug
}

// OutputDir is where a build with the given profile leaves its artifacts.
func OutputDir(targetDir string, profile Profile) string {
	return filepath.Join(targetDir, string(profile))
}

// Builder builds the plugin project living in dir.
type Builder interface {
	Build(ctx context.Context, dir string, profile Profile, targetDir string) error
}

// Cargo runs `cargo build`.
type Cargo struct {
	// Binary defaults to "cargo".
	Binary string
	// Output receives the build tool stdout, os.Stdout when nil.
	Output io.Writer
}

func (c *Cargo) Build(ctx context.Context, dir string, profile Profile, targetDir string) error {
	binary := c.Binary
	if binary == "" {
		binary = "cargo"
	}
	out := c.Output
	if out == nil {
		out = os.Stdout
	}

	args := []string{"build"}
	if profile == Release {
		args = append(args, "--release")
	}
	args = append(args, "--target-dir", targetDir)

	slog.Info(
		"Building plugin",
		slog.String("dir", dir),
		slog.String("profile", string(profile)),
	)

	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "running cargo build")
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		fmt.Fprintln(out, scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		return errors.Errorf("build error: %s", strings.TrimSpace(stderr.String()))
	}
	return nil
}

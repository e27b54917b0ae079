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

// Package admin talks to running picodata nodes through their admin console.
// Every statement spawns `picodata admin <socket>`, writes the statement to
// its stdin and collects the output once the console exits.
package admin

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/picodata/pike/common/metrics"
)

// ErrNoScalarLine is returned when the console output has no "- " result line.
var ErrNoScalarLine = errors.New("no scalar line in admin console output")

// Result is the outcome of one admin console invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Contains reports whether stdout or stderr contains s.
func (r Result) Contains(s string) bool {
	return strings.Contains(r.Stdout, s) || strings.Contains(r.Stderr, s)
}

type Client struct {
	binary string
}

// NewClient returns a client spawning the admin console of the given picodata binary.
func NewClient(binary string) *Client {
	return &Client{binary: binary}
}

func (c *Client) Binary() string {
	return c.binary
}

func (c *Client) command(ctx context.Context, socket string) *exec.Cmd {
	return exec.CommandContext(ctx, c.binary, "admin", socket) //nolint:gosec
}

// Exec sends query to the console listening on socket. A non-zero exit code
// is reported through Result, the error is only set when the console could
// not be run at all.
func (c *Client) Exec(ctx context.Context, socket string, query string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := c.command(ctx, socket)
	cmd.Stdin = strings.NewReader(query)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug(
		"Sending statement to admin console",
		slog.String("socket", socket),
		slog.String("query", query),
	)

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		metrics.AdminQueries.WithLabelValues("ok").Inc()
		return res, nil
	case errors.As(err, &exitErr):
		metrics.AdminQueries.WithLabelValues("failed").Inc()
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		metrics.AdminQueries.WithLabelValues("error").Inc()
		return res, errors.Wrap(err, "failed to spawn picodata admin")
	}
}

// RunQuery sends query to the console and returns its stdout. A non-zero
// exit is an error carrying the console stderr.
func (c *Client) RunQuery(ctx context.Context, socket string, query string) (string, error) {
	res, err := c.Exec(ctx, socket, query)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", errors.Errorf("failed to run query in picodata admin: %s", strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// QueryScalar runs query and extracts its single result line.
func (c *Client) QueryScalar(ctx context.Context, socket string, query string) (string, error) {
	out, err := c.RunQuery(ctx, socket, query)
	if err != nil {
		return "", err
	}
	return ScalarLine(out)
}

// ScalarLine returns the remainder of the first line starting with "- ".
func ScalarLine(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		if value, ok := strings.CutPrefix(strings.TrimRight(line, "\r"), "- "); ok {
			return value, nil
		}
	}
	return "", errors.Wrapf(ErrNoScalarLine, "unable to extract single line from output %q", output)
}

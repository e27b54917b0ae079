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

package admin

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/picodata/pike/common/poll"
)

const (
	DefaultAwaitTimeout = 60 * time.Second
	awaitInterval       = time.Second
)

// ErrAdminSocketTimeout is returned by Await when the console could not be
// attached before the deadline.
var ErrAdminSocketTimeout = errors.New("admin console did not connect in time")

// Console is an admin console session kept open across several statements.
type Console struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// Await waits for the socket to accept connections and attaches a console to it.
func (c *Client) Await(ctx context.Context, socket string, timeout time.Duration) (*Console, error) {
	var console *Console
	err := poll.Until(ctx, awaitInterval, timeout, func() error {
		if !IsActive(socket) {
			return errors.Errorf("socket %s is not accepting connections", socket)
		}
		var err error
		console, err = c.attach(ctx, socket)
		return err
	}, func(err error, _ time.Duration) {
		slog.Debug(
			"Waiting for admin socket",
			slog.String("socket", socket),
			slog.Any("error", err),
		)
	})
	if errors.Is(err, poll.ErrTimeout) {
		return nil, errors.Wrapf(ErrAdminSocketTimeout, "socket %s", socket)
	}
	if err != nil {
		return nil, err
	}

	slog.Info(
		"Connected to admin console",
		slog.String("socket", socket),
	)
	return console, nil
}

func (c *Client) attach(ctx context.Context, socket string) (*Console, error) {
	console := &Console{cmd: c.command(ctx, socket)}
	console.cmd.Stdout = &console.stdout
	console.cmd.Stderr = &console.stderr

	stdin, err := console.cmd.StdinPipe()
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	console.stdin = stdin

	if err := console.cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to spawn picodata admin")
	}
	return console, nil
}

// Send writes one statement to the console.
func (c *Console) Send(statement string) error {
	if _, err := io.WriteString(c.stdin, statement+"\n"); err != nil {
		return errors.Wrap(err, "failed to send text in admin socket")
	}
	return nil
}

// Close ends the session and returns everything the console printed.
func (c *Console) Close() (Result, error) {
	closeErr := c.stdin.Close()
	err := c.cmd.Wait()

	res := Result{Stdout: c.stdout.String(), Stderr: c.stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, errors.Wrap(err, "failed to wait for picodata admin")
	}
	return res, closeErr
}

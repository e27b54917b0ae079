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
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const maxLogLine = 1024 * 1024

// logCapture drains the stdout and stderr of a foreground instance. Every line
// is printed with the instance label and appended to the instance log file.
// Both drains hand their lines to a single writer goroutine owning the file.
type logCapture struct {
	out   io.Writer
	file  *os.File
	color *color.Color
	label atomic.Pointer[string]
	lines chan string
	done  chan struct{}
	err   error
}

func startLogCapture(name, logPath string, colors bool, out io.Writer, outputs ...io.Reader) (*logCapture, error) {
	file, err := os.Create(logPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %s", logPath)
	}

	c := &logCapture{
		out:   out,
		file:  file,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	if colors {
		c.color = color.RGB(30+rand.IntN(190), 30+rand.IntN(190), 30+rand.IntN(190))
	}
	c.rename(name)

	go c.write()

	var g errgroup.Group
	for _, r := range outputs {
		g.Go(func() error {
			return c.drain(r)
		})
	}
	go func() {
		c.err = g.Wait()
		close(c.lines)
	}()
	return c, nil
}

// rename changes the label printed in front of every line.
func (c *logCapture) rename(name string) {
	label := name + ": "
	if c.color != nil {
		label = c.color.Sprint(label)
	}
	c.label.Store(&label)
}

func (c *logCapture) drain(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	return scanner.Err()
}

func (c *logCapture) write() {
	defer close(c.done)
	defer c.file.Close()

	for line := range c.lines {
		fmt.Fprintf(c.out, "%s%s\n", *c.label.Load(), line)
		fmt.Fprintln(c.file, line)
	}
}

// wait blocks until both outputs are closed and every line is written.
func (c *logCapture) wait() error {
	<-c.done
	return c.err
}

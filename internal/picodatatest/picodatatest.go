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

// Package picodatatest provides a fake picodata binary for tests. The fake is
// the test binary itself, re-executed through a small shell script: call
// MaybeRun first thing in TestMain and Install to get a binary path.
package picodatatest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	envFake        = "PIKE_FAKE_PICODATA"
	envVersion     = "PIKE_FAKE_PICODATA_VERSION"
	envFailOn      = "PIKE_FAKE_PICODATA_FAIL_ON"
	envFailMessage = "PIKE_FAKE_PICODATA_FAIL_MESSAGE"
	envState       = "PIKE_FAKE_PICODATA_STATE"

	DefaultVersion = "picodata 25.1.0-0-g1234567"

	// QueriesFile holds every non-introspection statement a fake node received.
	QueriesFile = "queries.log"
	// ArgsFile holds the command line a fake node was started with.
	ArgsFile = "args"
)

type Options struct {
	// Version is printed by --version.
	Version string
	// FailOn makes every statement containing it exit with code 1.
	FailOn string
	// FailMessage is the output of failing statements.
	FailMessage string
	// State is the reported instance state, Online when empty.
	State string
}

func (o Options) withDefaults() Options {
	if o.Version == "" {
		o.Version = DefaultVersion
	}
	if o.FailMessage == "" {
		o.FailMessage = "sbroad: statement failed"
	}
	if o.State == "" {
		o.State = "Online"
	}
	return o
}

func optionsFromEnv() Options {
	return Options{
		Version:     os.Getenv(envVersion),
		FailOn:      os.Getenv(envFailOn),
		FailMessage: os.Getenv(envFailMessage),
		State:       os.Getenv(envState),
	}.withDefaults()
}

// MaybeRun turns the current process into the fake binary when it was started
// through a script created by Install. It never returns in that case.
func MaybeRun() {
	if os.Getenv(envFake) != "1" {
		return
	}
	os.Exit(run(os.Args[1:], optionsFromEnv()))
}

// Install writes a picodata executable into a temporary directory and returns its path.
func Install(t testing.TB, opts Options) string {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("failed to locate test binary: %v", err)
	}

	opts = opts.withDefaults()
	script := fmt.Sprintf("#!/bin/sh\n%s=1 %s=%s %s=%s %s=%s %s=%s exec %s \"$@\"\n",
		envFake,
		envVersion, shellQuote(opts.Version),
		envFailOn, shellQuote(opts.FailOn),
		envFailMessage, shellQuote(opts.FailMessage),
		envState, shellQuote(opts.State),
		shellQuote(exe),
	)

	path := filepath.Join(t.TempDir(), "picodata")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil { //nolint:gosec
		t.Fatalf("failed to write fake picodata: %v", err)
	}
	return path
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func run(args []string, opts Options) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "missing command")
		return 2
	}

	switch args[0] {
	case "--version":
		fmt.Println(opts.Version)
		return 0
	case "admin":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: picodata admin <socket>")
			return 2
		}
		return admin(args[1], os.Stdin, os.Stdout, os.Stderr)
	case "run":
		return runNode(args[1:], opts)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 2
	}
}

func admin(socket string, stdin io.Reader, stdout, stderr io.Writer) int {
	query, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		fmt.Fprintf(stderr, "failed to connect to socket %s: %v\n", socket, err)
		return 1
	}
	defer conn.Close()

	if _, err := conn.Write(query); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	_ = conn.(*net.UnixConn).CloseWrite()

	reader := bufio.NewReader(conn)
	header, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	code, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	body, _ := io.ReadAll(reader)

	fmt.Fprintln(stdout, "Connected to admin console by socket")
	_, _ = stdout.Write(body)
	if code != 0 {
		_, _ = stderr.Write(body)
	}
	return code
}

func runNode(args []string, opts Options) int {
	flags := map[string]string{}
	for i := 0; i+1 < len(args); i += 2 {
		flags[args[i]] = args[i+1]
	}

	dir := flags["--instance-dir"]
	if dir == "" {
		dir = flags["--data-dir"]
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "instance dir is required")
		return 2
	}

	if err := os.WriteFile(filepath.Join(dir, ArgsFile), []byte(strings.Join(args, "\n")), 0o644); err != nil { //nolint:gosec
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var stdout, stderr io.Writer = os.Stdout, os.Stderr
	if logPath, ok := flags["--log"]; ok {
		f, err := os.Create(logPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer f.Close()
		stdout, stderr = f, f
	}

	name := fmt.Sprintf("%s_1_%s", flags["--tier"], strings.TrimPrefix(filepath.Base(dir), "i"))
	node, err := newNode(dir, name, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Fprintf(stdout, "starting instance %s\n", name)
	fmt.Fprintf(stderr, "listening on %s\n", flags["--iproto-listen"]+flags["--listen"])

	node.serve()
	return 0
}

// Node is a fake picodata node answering admin console statements.
type Node struct {
	sync.Mutex

	dir      string
	name     string
	opts     Options
	listener net.Listener
	done     chan struct{}
}

// Serve starts a fake node inside the test process, listening on
// instanceDir/admin.sock until the test ends.
func Serve(t testing.TB, instanceDir, name string, opts Options) *Node {
	t.Helper()

	if err := os.MkdirAll(instanceDir, 0o755); err != nil {
		t.Fatalf("failed to create instance dir: %v", err)
	}
	n, err := newNode(instanceDir, name, opts.withDefaults())
	if err != nil {
		t.Fatalf("failed to start fake node: %v", err)
	}
	go n.serve()
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func newNode(dir, name string, opts Options) (*Node, error) {
	socket := filepath.Join(dir, "admin.sock")
	_ = os.Remove(socket)

	l, err := net.Listen("unix", socket)
	if err != nil {
		return nil, err
	}
	return &Node{
		dir:      dir,
		name:     name,
		opts:     opts,
		listener: l,
		done:     make(chan struct{}),
	}, nil
}

func (n *Node) serve() {
	defer close(n.done)
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			return
		}
		go n.handle(conn)
	}
}

func (n *Node) Close() error {
	err := n.listener.Close()
	<-n.done
	return err
}

func (n *Node) handle(conn net.Conn) {
	defer conn.Close()

	query, err := io.ReadAll(conn)
	if err != nil {
		return
	}
	code, out := n.respond(string(query))
	_, _ = fmt.Fprintf(conn, "%d\n%s", code, out)
}

func (n *Node) respond(query string) (int, string) {
	switch {
	case strings.Contains(query, "instance_info().name"):
		return 0, fmt.Sprintf("---\n- %s\n...\n", n.name)
	case strings.Contains(query, "current_state.variant"):
		return 0, fmt.Sprintf("---\n- %s\n...\n", n.opts.State)
	case strings.Contains(query, "raft.leader_id"):
		return 0, "---\n- 1\n...\n"
	}

	n.record(query)

	if n.opts.FailOn != "" && strings.Contains(query, n.opts.FailOn) {
		return 1, n.opts.FailMessage + "\n"
	}
	return 0, "1\n"
}

func (n *Node) record(query string) {
	n.Lock()
	defer n.Unlock()

	f, err := os.OpenFile(filepath.Join(n.dir, QueriesFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = fmt.Fprintln(f, strings.TrimSpace(query))
}

// Queries returns the statements recorded by the node living in instanceDir.
func Queries(t testing.TB, instanceDir string) []string {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(instanceDir, QueriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("failed to read recorded queries: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(content)), "\n")
}

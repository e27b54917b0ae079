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
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	SocketName = "admin.sock"

	dialTimeout = time.Second
)

// ErrNoActiveSocket is returned when no instance of a cluster accepts connections.
var ErrNoActiveSocket = errors.New("no active admin socket found")

// SocketPath returns the admin socket of the instance living in instanceDir.
func SocketPath(instanceDir string) string {
	return filepath.Join(instanceDir, SocketName)
}

// IsActive reports whether the socket file exists and accepts a connection.
func IsActive(socket string) bool {
	if _, err := os.Stat(socket); err != nil {
		return false
	}
	conn, err := net.DialTimeout("unix", socket, dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ActiveSocket returns the admin socket of the named instance of the cluster
// if the instance is running.
func ActiveSocket(clusterDir, instanceName string) (string, bool) {
	socket := SocketPath(filepath.Join(clusterDir, instanceName))
	if !IsActive(socket) {
		return "", false
	}
	return socket, true
}

// FindActiveSocket scans the cluster directory and returns the socket of the
// first instance accepting connections.
func FindActiveSocket(clusterDir string) (string, error) {
	entries, err := os.ReadDir(clusterDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoActiveSocket
		}
		return "", errors.Wrapf(err, "failed to read cluster dir %s", clusterDir)
	}

	for _, entry := range entries {
		if socket, ok := ActiveSocket(clusterDir, entry.Name()); ok {
			return socket, nil
		}
	}
	return "", ErrNoActiveSocket
}

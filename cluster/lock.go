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
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const lockFileName = "pike.lock"

// lockClusterDir takes an exclusive flock on <clusterDir>/pike.lock. The
// descriptor is opened close-on-exec so instances spawned while the lock is
// held do not inherit it.
func lockClusterDir(clusterDir string) (func(), error) {
	if err := os.MkdirAll(clusterDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cluster dir %s", clusterDir)
	}

	path := filepath.Join(clusterDir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open lock file %s", path)
	}

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "cluster dir %s is used by another pike process", clusterDir)
	}

	return func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

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
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockClusterDir(t *testing.T) {
	dir := t.TempDir()

	unlock, err := lockClusterDir(dir)
	require.NoError(t, err)

	_, err = lockClusterDir(dir)
	assert.ErrorContains(t, err, "is used by another pike process")

	unlock()
	unlock, err = lockClusterDir(dir)
	require.NoError(t, err)
	unlock()
}

func TestLockClusterDir_NotInheritedByChildren(t *testing.T) {
	dir := t.TempDir()

	unlock, err := lockClusterDir(dir)
	require.NoError(t, err)

	child := exec.Command("sleep", "30")
	require.NoError(t, child.Start())
	t.Cleanup(func() {
		_ = child.Process.Kill()
		_ = child.Wait()
	})
	unlock()

	unlock, err = lockClusterDir(dir)
	require.NoError(t, err, "a running child must not keep the lock")
	unlock()
}

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

package archive

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func writeRawArchive(t *testing.T, dst string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(dst)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestLibName(t *testing.T) {
	assert.Equal(t, "dylib", libExt("darwin"))
	assert.Equal(t, "so", libExt("linux"))
	assert.Equal(t, "libweather_cache."+LibExt, LibName("weather-cache"))
}

func TestPackDirAndUnpack(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		ManifestName:          "name: weather\nversion: 0.1.0\n",
		LibName("weather"):    "ELF",
		"migrations/0001.sql": "-- pico.UP\n",
		"assets/config.json":  "{}",
	})

	archivePath := filepath.Join(t.TempDir(), "weather-0.1.0.tar.gz")
	size, err := PackDir(src, "weather/0.1.0", archivePath)
	require.NoError(t, err)
	assert.Positive(t, size)

	require.NoError(t, Validate(archivePath))

	dst := t.TempDir()
	require.NoError(t, Unpack(archivePath, dst))

	content, err := os.ReadFile(filepath.Join(dst, "weather", "0.1.0", ManifestName))
	require.NoError(t, err)
	assert.Equal(t, "name: weather\nversion: 0.1.0\n", string(content))
	assert.FileExists(t, filepath.Join(dst, "weather", "0.1.0", "migrations", "0001.sql"))
	assert.FileExists(t, filepath.Join(dst, "weather", "0.1.0", LibName("weather")))

	// unpacking twice overwrites
	require.NoError(t, Unpack(archivePath, dst))
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	for _, test := range []struct {
		name    string
		entries map[string]string
		err     string
	}{
		{"valid", map[string]string{"p/0.1.0/manifest.yaml": "", "p/0.1.0/libp." + LibExt: ""}, ""},
		{"no manifest", map[string]string{"p/0.1.0/libp." + LibExt: ""}, "missing manifest"},
		{"no library", map[string]string{"p/0.1.0/manifest.yaml": ""}, "missing plugin library"},
		{"too shallow", map[string]string{"manifest.yaml": "", "libp." + LibExt: ""}, "missing manifest"},
		{"too deep", map[string]string{"x/p/0.1.0/manifest.yaml": "", "x/p/0.1.0/libp." + LibExt: ""}, "missing manifest"},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := filepath.Join(dir, test.name+".tar.gz")
			writeRawArchive(t, p, test.entries)
			err := Validate(p)
			if test.err == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, test.err)
			}
		})
	}

	assert.ErrorContains(t, Validate(dir), "must be a file")
	assert.ErrorContains(t, Validate(filepath.Join(dir, "missing.tar.gz")), "must be a file")

	notGzip := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(notGzip, []byte("hello"), 0o644))
	assert.ErrorContains(t, Validate(notGzip), "unable to read plugin archive")
}

func TestUnpack_RejectsEscapingEntries(t *testing.T) {
	p := filepath.Join(t.TempDir(), "evil.tar.gz")
	writeRawArchive(t, p, map[string]string{
		"p/0.1.0/manifest.yaml":       "",
		"p/0.1.0/libp." + LibExt:      "",
		"../../escaped/manifest.yaml": "",
	})

	err := Unpack(p, t.TempDir())
	assert.ErrorContains(t, err, "escapes the destination")
}

func TestPackDirFailureLeavesNothing(t *testing.T) {
	out := t.TempDir()
	_, err := PackDir(filepath.Join(t.TempDir(), "missing"), "weather/0.1.0", filepath.Join(out, "weather-0.1.0.tar.gz"))
	require.Error(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenTar_CloseReleasesArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "p.tar.gz")
	writeRawArchive(t, p, map[string]string{"p/0.1.0/manifest.yaml": "name: p"})

	tr, closer, err := openTar(p)
	require.NoError(t, err)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "p/0.1.0/manifest.yaml", hdr.Name)

	tf, ok := closer.(*tarFile)
	require.True(t, ok)
	require.NotNil(t, tf.gz)
	require.NoError(t, closer.Close())

	_, err = tf.file.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

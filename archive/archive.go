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

// Package archive handles plugin shipping archives: gzip-compressed tarballs
// laid out as <plugin>/<version>/<file>.
package archive

import (
	"archive/tar"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const ManifestName = "manifest.yaml"

// LibExt is the shared library extension of the current platform.
var LibExt = libExt(runtime.GOOS)

func libExt(goos string) string {
	if goos == "darwin" {
		return "dylib"
	}
	return "so"
}

// LibName returns the file name of a plugin's shared library.
func LibName(pkgName string) string {
	return "lib" + strings.ReplaceAll(pkgName, "-", "_") + "." + LibExt
}

type tarFile struct {
	gz   *gzip.Reader
	file *os.File
}

func (t *tarFile) Close() error {
	return multierr.Combine(t.gz.Close(), t.file.Close())
}

func openTar(archivePath string) (*tar.Reader, io.Closer, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to open plugin archive")
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrap(err, "unable to read plugin archive")
	}
	return tar.NewReader(gz), &tarFile{gz: gz, file: f}, nil
}

// Validate checks that archivePath is a shipping archive: a regular file whose
// entries include a manifest and a shared library at <plugin>/<version>/ depth.
func Validate(archivePath string) error {
	info, err := os.Stat(archivePath)
	if err != nil || !info.Mode().IsRegular() {
		return errors.New("plugin archive path must be a file")
	}

	tr, closer, err := openTar(archivePath)
	if err != nil {
		return err
	}
	defer closer.Close()

	var hasManifest, hasLib bool
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "unable to read plugin archive")
		}

		parts := strings.Split(path.Clean(hdr.Name), "/")
		if len(parts) != 3 {
			continue
		}
		hasManifest = hasManifest || parts[2] == ManifestName
		hasLib = hasLib || strings.HasSuffix(parts[2], "."+LibExt)
		if hasManifest && hasLib {
			return nil
		}
	}

	switch {
	case !hasManifest:
		return errors.New("plugin archive missing manifest")
	case !hasLib:
		return errors.New("plugin archive missing plugin library")
	default:
		return errors.New("plugin archive has invalid structure")
	}
}

// Unpack validates the archive and extracts it into dst, overwriting existing
// files. dst itself must exist.
func Unpack(archivePath, dst string) error {
	if err := Validate(archivePath); err != nil {
		return errors.Wrapf(err, "can not unpack shipping archive at %s to %s", archivePath, dst)
	}

	tr, closer, err := openTar(archivePath)
	if err != nil {
		return err
	}
	defer closer.Close()

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "failed to unpack shipping archive at %s", archivePath)
		}

		target, err := entryPath(dst, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %s", target)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			slog.Debug(
				"Skipping unsupported archive entry",
				slog.String("entry", hdr.Name),
			)
		}
	}
}

func entryPath(dst, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("archive entry %q escapes the destination", name)
	}
	return filepath.Join(dst, clean), nil
}

func writeEntry(target string, r io.Reader, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(target))
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0o200)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", target)
	}
	if _, err := io.Copy(f, r); err != nil { //nolint:gosec
		_ = f.Close()
		return errors.Wrapf(err, "failed to write %s", target)
	}
	return f.Close()
}

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
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Writer builds a shipping archive.
type Writer struct {
	gz *gzip.Writer
	tw *tar.Writer
}

func NewWriter(w io.Writer) (*Writer, error) {
	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	return &Writer{gz: gz, tw: tar.NewWriter(gz)}, nil
}

// AddFile stores the file at src under name. Symlinks are followed.
func (w *Writer) AddFile(name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := w.tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "failed to append %s", name)
	}
	if _, err := io.Copy(w.tw, f); err != nil {
		return errors.Wrapf(err, "failed to append %s", name)
	}
	return nil
}

// AddDir stores the tree rooted at src under prefix.
func (w *Writer) AddDir(prefix, src string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))

		if !d.IsDir() {
			return w.AddFile(name, p)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name + "/"
		return w.tw.WriteHeader(hdr)
	})
}

func (w *Writer) Close() error {
	return multierr.Combine(w.tw.Close(), w.gz.Close())
}

// PackDir writes the tree rooted at src into a new archive at dst, every
// entry prefixed with prefix. It returns the archive size.
func PackDir(src, prefix, dst string) (int64, error) {
	// written next to dst and renamed once complete
	staged := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+".tar.gz")
	f, err := os.Create(staged)
	if err != nil {
		return 0, errors.Wrap(err, "failed to pack the plugin")
	}
	defer f.Close()

	w, err := NewWriter(f)
	if err != nil {
		_ = os.Remove(staged)
		return 0, err
	}
	if err := w.AddDir(prefix, src); err != nil {
		_ = w.Close()
		_ = os.Remove(staged)
		return 0, errors.Wrapf(err, "failed to pack %s", src)
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(staged)
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = os.Remove(staged)
		return 0, err
	}
	if err := os.Rename(staged, dst); err != nil {
		_ = os.Remove(staged)
		return 0, errors.Wrap(err, "failed to pack the plugin")
	}
	return info.Size(), nil
}

// Package fs persists the generated document tree on the local filesystem.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/pollen-map/internal/domain"
	"github.com/couchcryptid/pollen-map/internal/pipeline"
	"github.com/couchcryptid/pollen-map/internal/render"
)

// Writer writes documents under a root directory. Every file is written to a
// temporary sibling and renamed into place, so a reader never observes a
// partial document. It implements pipeline.DocumentSink and
// repair.FileWriter.
type Writer struct {
	root        string
	precompress bool
}

// NewWriter creates the root directory if needed. With precompress set, every
// .html file also gets a gzip sibling (.html.gz) for static hosts that serve
// precompressed assets.
func NewWriter(root string, precompress bool) (*Writer, error) {
	if root == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Writer{root: root, precompress: precompress}, nil
}

// Root returns the output directory.
func (w *Writer) Root() string { return w.root }

// WriteDocument writes a per-date document at its relative path.
func (w *Writer) WriteDocument(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.WriteFile(filepath.Join(w.root, filepath.FromSlash(doc.Path)), doc.Content)
}

// WriteIndex writes the navigation document.
func (w *Writer) WriteIndex(ctx context.Context, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.WriteFile(filepath.Join(w.root, render.IndexPath), content)
}

// WriteManifest writes the run manifest.
func (w *Writer) WriteManifest(ctx context.Context, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.WriteFile(filepath.Join(w.root, pipeline.ManifestPath), content)
}

// WriteFile atomically writes data to path.
func (w *Writer) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := safeWriteFile(path, data); err != nil {
		return err
	}
	if w.precompress && strings.HasSuffix(path, ".html") {
		gz, err := compress(data)
		if err != nil {
			return fmt.Errorf("compress %s: %w", filepath.Base(path), err)
		}
		if err := safeWriteFile(path+".gz", gz); err != nil {
			return err
		}
	}
	return nil
}

// CheckReadiness returns nil once the index document exists.
func (w *Writer) CheckReadiness(_ context.Context) error {
	if _, err := os.Stat(filepath.Join(w.root, render.IndexPath)); err != nil {
		return fmt.Errorf("index not generated: %w", err)
	}
	return nil
}

func safeWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

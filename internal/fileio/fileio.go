// Package fileio opens dataset and telemetry files that may be stored zstd
// compressed. A ".zst" suffix selects the compressed codec; anything else is
// read or written as-is.
package fileio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedExt marks zstd-compressed files.
const CompressedExt = ".zst"

// IsCompressed reports whether path names a zstd file.
func IsCompressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), CompressedExt)
}

type decodingReader struct {
	dec  *zstd.Decoder
	file *os.File
}

func (r *decodingReader) Read(p []byte) (int, error) { return r.dec.Read(p) }

func (r *decodingReader) Close() error {
	r.dec.Close()
	return r.file.Close()
}

// Open opens path for reading, transparently decompressing ".zst" files.
// The returned error wraps os.ErrNotExist when the file is missing.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	if !IsCompressed(path) {
		return f, nil
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &decodingReader{dec: dec, file: f}, nil
}

type encodingWriter struct {
	enc  *zstd.Encoder
	file *os.File
}

func (w *encodingWriter) Write(p []byte) (int, error) { return w.enc.Write(p) }

func (w *encodingWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to flush zstd stream: %w", err)
	}
	return w.file.Close()
}

// Create truncates or creates path for writing. ".zst" paths are written as a
// single zstd stream that is finalized on Close.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	if !IsCompressed(path) {
		return f, nil
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &encodingWriter{enc: enc, file: f}, nil
}

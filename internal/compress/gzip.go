// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package compress implements the synchronous gzip compression bridge of
// spec.md §3 "compressionLevel" / §4.1 CompressBody and Decompress. The
// backend is a first-class optional component: a host build that omits it
// must still work, with compression requests degrading to NotSupported
// rather than panicking.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Level mirrors spec.md's compressionLevel enum.
type Level int

const (
	// None disables compression.
	None Level = iota
	Low
	Medium
	High
)

func (l Level) gzipLevel() int {
	switch l {
	case Low:
		return gzip.BestSpeed
	case Medium:
		return gzip.DefaultCompression
	case High:
		return gzip.BestCompression
	default:
		return gzip.NoCompression
	}
}

// Backend performs the actual compress/decompress work. The standard
// library backend is always available; the indirection exists so a build
// that genuinely lacks compress/gzip (e.g. a minimal embedded target) can
// supply nil and have Bridge.Compress/Bridge.Decompress report
// NotSupported; the engine checks Bridge.Available before compressing.
type Backend interface {
	Compress(level Level, data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// StdBackend implements Backend with compress/gzip.
type StdBackend struct{}

// ErrNotSupported is returned when no compression backend is configured.
var ErrNotSupported = fmt.Errorf("compress: no backend available")

// Compress gzip-encodes data at the given level.
func (StdBackend) Compress(level Level, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level.gzipLevel())
	if err != nil {
		return nil, fmt.Errorf("compress: new writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("compress: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress gzip-decodes data.
func (StdBackend) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress: new reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: read: %w", err)
	}
	return out, nil
}

// Bridge wraps an optional Backend, making its absence a normal return
// value rather than a nil-pointer hazard.
type Bridge struct {
	backend Backend
}

// NewBridge wraps backend, which may be nil to model "compression backend
// absent" (spec.md §3 compressionLevel, §4.1 CompressBody: "only if ... a
// compression backend is available").
func NewBridge(backend Backend) *Bridge {
	return &Bridge{backend: backend}
}

// Available reports whether a backend is configured.
func (b *Bridge) Available() bool {
	return b != nil && b.backend != nil
}

// Compress gzip-encodes data at level, or ErrNotSupported if unavailable.
func (b *Bridge) Compress(level Level, data []byte) ([]byte, error) {
	if !b.Available() {
		return nil, ErrNotSupported
	}
	return b.backend.Compress(level, data)
}

// Decompress gzip-decodes data, or ErrNotSupported if unavailable.
func (b *Bridge) Decompress(data []byte) ([]byte, error) {
	if !b.Available() {
		return nil, ErrNotSupported
	}
	return b.backend.Decompress(data)
}

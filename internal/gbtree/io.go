package gbtree

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// magic prefixes every model file.
var magic = []byte("EVFGBT1\n")

// ErrModelFormat is returned when a file is not a model written by Save.
var ErrModelFormat = errors.New("not a gbtree model file")

// Save writes the model as a zstd-compressed gob stream.
func (m *Model) Save(w io.Writer) error {
	if _, err := w.Write(magic); err != nil {
		return fmt.Errorf("write model header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(m); err != nil {
		zw.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrModelFormat
		}
		return nil, fmt.Errorf("read model header: %w", err)
	}
	if !bytes.Equal(head, magic) {
		return nil, ErrModelFormat
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var m Model
	if err := gob.NewDecoder(zr).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := m.Validate(m.NumFeatures); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelFormat, err)
	}
	return &m, nil
}

// SaveFile writes the model to path, replacing it atomically.
func (m *Model) SaveFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create model directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := m.Save(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close model file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename model file: %w", err)
	}
	return nil
}

// LoadFile reads a model from path.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	m, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return m, nil
}

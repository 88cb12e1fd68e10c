// Package formats reads and writes terrain files: a small container around
// a stream of nested binary chunks.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// File format errors.
var (
	ErrInvalidMagic       = errors.New("invalid terrain file magic: expected 'MTRN'")
	ErrUnsupportedVersion = errors.New("unsupported terrain file version")
	ErrChunkMismatch      = errors.New("unexpected chunk")
	ErrTruncated          = errors.New("truncated terrain data")
)

const (
	containerMagic   = "MTRN"
	containerVersion = 1
	headerSize       = 8

	flagZstd uint16 = 1 << 0
)

// WriteOptions controls the container.
type WriteOptions struct {
	// Compress stores the chunk stream zstd compressed.
	Compress bool
}

// wrap puts a chunk stream into the container.
func wrap(w io.Writer, payload []byte, opts WriteOptions) error {
	var flags uint16
	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		payload = enc.EncodeAll(payload, nil)
		enc.Close()
		flags |= flagZstd
	}

	var hdr [headerSize]byte
	copy(hdr[:], containerMagic)
	binary.LittleEndian.PutUint16(hdr[4:], containerVersion)
	binary.LittleEndian.PutUint16(hdr[6:], flags)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}

// unwrap returns the chunk stream held by a container.
func unwrap(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: header", ErrTruncated)
	}
	if string(data[0:4]) != containerMagic {
		return nil, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint16(data[4:])
	if version == 0 || version > containerVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	flags := binary.LittleEndian.Uint16(data[6:])
	payload := data[headerSize:]
	if flags&flagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
	}
	return payload, nil
}

// IsTerrainFile reports whether data starts with the container magic.
func IsTerrainFile(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte(containerMagic))
}

// LoadTerrainFile reads and parses a terrain file from disk.
func LoadTerrainFile(path string) (*TerrainData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading terrain file: %w", err)
	}
	return ParseTerrain(data)
}

// SaveTerrainFile writes a terrain file to disk.
func SaveTerrainFile(path string, d *TerrainData, opts WriteOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating terrain file: %w", err)
	}
	if err := WriteTerrain(f, d, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

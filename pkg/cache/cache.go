// Package cache persists preprocessed volumes so repeated training runs
// skip the expensive decode and interpolation work.
//
// The store is a collaborator injected into the pipeline; the pipeline
// decides when to read or write it, the store only moves bytes.
package cache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dicomprep/internal/models"
)

// ErrNotFound is returned by Get when no volume is cached for a series.
var ErrNotFound = errors.New("cache: volume not found")

// Store persists and retrieves preprocessed volumes keyed by series ID.
type Store interface {
	Put(seriesID string, v *models.Volume) error
	Get(seriesID string) (*models.Volume, error)
}

// FileStore keeps one binary volume file per series under a root
// directory. The root is always supplied by the caller; there is no
// default cache location.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// volMagic identifies a cached volume file; the version byte allows the
// layout to evolve without silently misreading old files.
var volMagic = [4]byte{'D', 'V', 'O', 'L'}

const volVersion uint8 = 1

type volHeader struct {
	Magic   [4]byte
	Version uint8
	_       [3]byte // padding to keep the header word-aligned
	Depth   uint32
	Height  uint32
	Width   uint32
	Spacing [3]float64
}

func (s *FileStore) path(seriesID string) string {
	return filepath.Join(s.root, seriesID+".vol")
}

// Put writes a volume to the store, replacing any previous entry for the
// series. The write goes through a temp file and rename so a crash never
// leaves a truncated entry behind.
func (s *FileStore) Put(seriesID string, v *models.Volume) error {
	tmp, err := os.CreateTemp(s.root, seriesID+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	header := volHeader{
		Magic:   volMagic,
		Version: volVersion,
		Depth:   uint32(v.Depth),
		Height:  uint32(v.Height),
		Width:   uint32(v.Width),
		Spacing: v.Spacing,
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, v.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache data: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(seriesID)); err != nil {
		return fmt.Errorf("failed to publish cache entry: %w", err)
	}
	return nil
}

// Get reads a cached volume, or ErrNotFound when the series has no entry.
func (s *FileStore) Get(seriesID string) (*models.Volume, error) {
	f, err := os.Open(s.path(seriesID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open cache entry: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header volHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read cache header: %w", err)
	}
	if header.Magic != volMagic {
		return nil, fmt.Errorf("cache entry for %s is not a volume file", seriesID)
	}
	if header.Version != volVersion {
		return nil, fmt.Errorf("cache entry for %s has unsupported version %d", seriesID, header.Version)
	}

	v := models.NewVolume(int(header.Depth), int(header.Height), int(header.Width), header.Spacing)
	if err := binary.Read(r, binary.LittleEndian, v.Data); err != nil {
		return nil, fmt.Errorf("failed to read cache data: %w", err)
	}
	return v, nil
}

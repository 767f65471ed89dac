// Package cache stores rendered chart images on disk, keyed by a digest of
// the configuration and the render parameters. Each entry is a gob-encoded
// Entry inside a zip file.
package cache

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/chartjs-node-go/pkg/chartjs"
)

const entryName = "data.gob"

// ErrInvalidEntry is returned for a cache file that holds no entry.
var ErrInvalidEntry = errors.New("invalid cache file format")

// Entry is one rendered image.
type Entry struct {
	Key     string
	Type    string
	Width   int
	Height  int
	Ratio   float64
	Data    []byte
	Created time.Time
}

// Key returns the cache key for rendering cfg at width x height and ratio
// as mime.
func Key(cfg *chartjs.Configuration, width, height int, ratio float64, mime string) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config for cache key: %w", err)
	}
	h := sha256.New()
	h.Write(raw)
	fmt.Fprintf(h, "|%d|%d|%g|%s", width, height, ratio, mime)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Store is a directory of cache entries.
type Store struct {
	Dir string
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.Dir, key+".zip.gob")
}

// Exists reports whether an entry for key is stored.
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Save writes e under e.Key.
func (s *Store) Save(e *Entry) error {
	if e.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidEntry)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", s.Dir, err)
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("failed to gob-encode entry: %w", err)
	}

	file := s.path(e.Key)
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("failed to create cache file %s: %w", file, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(entryName)
	if err != nil {
		return fmt.Errorf("failed to create %s entry in zip: %w", entryName, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write entry to zip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return f.Close()
}

// Load reads the entry stored under key.
func (s *Store) Load(key string) (*Entry, error) {
	file := s.path(key)
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file %s: %w", file, err)
	}
	defer zr.Close()

	if len(zr.File) == 0 || zr.File[0].Name != entryName {
		return nil, fmt.Errorf("%w: %s not found in %s", ErrInvalidEntry, entryName, file)
	}
	r, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s from zip: %w", entryName, err)
	}
	defer r.Close()

	var e Entry
	if err := gob.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("failed to gob-decode entry: %w", err)
	}
	if e.Key != key {
		return nil, fmt.Errorf("%w: key mismatch in %s", ErrInvalidEntry, file)
	}
	return &e, nil
}

// Remove deletes the entry stored under key. Removing a missing entry is
// not an error.
func (s *Store) Remove(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// Package filestore persists the reading log and light flag in a single JSON document.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pscheid92/ledsync/internal/adapter/metrics"
	"github.com/pscheid92/ledsync/internal/domain"
	"golang.org/x/sync/singleflight"
)

type document struct {
	Readings   []json.RawMessage `json:"readings"`
	LightState bool              `json:"lightState"`
}

func defaultDocument() document {
	return document{Readings: []json.RawMessage{}, LightState: false}
}

// Store implements domain.Gateway on top of one JSON file. The file is
// re-read on every call, so edits made by other processes are picked up.
type Store struct {
	path    string
	mu      sync.Mutex // serializes read-modify-write cycles
	group   singleflight.Group
	gen     atomic.Uint64 // bumped after every successful write
	metrics *metrics.StorageMetrics
}

var _ domain.Gateway = (*Store)(nil)

// New opens the store at path, creating it with an empty document when it does not exist.
// storageMetrics may be nil.
func New(path string, storageMetrics *metrics.StorageMetrics) (*Store, error) {
	s := &Store{path: path, metrics: storageMetrics}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.save(defaultDocument()); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", domain.ErrStorage, path, err)
	}
	return s, nil
}

func (s *Store) LightFlag(_ context.Context) (bool, error) {
	start := time.Now()
	doc, err := s.load()
	s.metrics.Observe("light_flag", time.Since(start).Seconds(), err)
	if err != nil {
		return false, err
	}
	return doc.LightState, nil
}

func (s *Store) ToggleLightFlag(_ context.Context) (bool, error) {
	start := time.Now()
	flag, err := s.update(func(doc *document) {
		doc.LightState = !doc.LightState
	})
	s.metrics.Observe("toggle_light_flag", time.Since(start).Seconds(), err)
	if err != nil {
		return false, err
	}
	return flag.LightState, nil
}

// Readings returns every stored reading in insertion order. Concurrent
// callers share a single file read, but never one that began before a write
// they have already observed completing.
func (s *Store) Readings(_ context.Context) ([]json.RawMessage, error) {
	start := time.Now()
	v, err, _ := s.group.Do(s.readingsKey(), func() (any, error) {
		doc, err := s.load()
		if err != nil {
			return nil, err
		}
		return doc.Readings, nil
	})
	s.metrics.Observe("readings", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	shared := v.([]json.RawMessage)
	readings := make([]json.RawMessage, len(shared))
	copy(readings, shared)
	return readings, nil
}

func (s *Store) AppendReading(_ context.Context, reading json.RawMessage) error {
	start := time.Now()
	_, err := s.update(func(doc *document) {
		doc.Readings = append(doc.Readings, reading)
	})
	s.metrics.Observe("append_reading", time.Since(start).Seconds(), err)
	return err
}

func (s *Store) readingsKey() string {
	return "readings:" + strconv.FormatUint(s.gen.Load(), 10)
}

// Ping reports whether the document can be read and parsed.
func (s *Store) Ping(_ context.Context) error {
	_, err := s.load()
	return err
}

func (s *Store) update(mutate func(doc *document)) (document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return document{}, err
	}
	mutate(&doc)
	if err := s.save(doc); err != nil {
		return document{}, err
	}
	s.gen.Add(1)
	return doc, nil
}

func (s *Store) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultDocument(), nil
	}
	if err != nil {
		return document{}, fmt.Errorf("%w: read %s: %w", domain.ErrStorage, s.path, err)
	}

	doc := defaultDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("%w: decode %s: %w", domain.ErrStorage, s.path, err)
	}
	if doc.Readings == nil {
		doc.Readings = []json.RawMessage{}
	}
	return doc, nil
}

// save replaces the document atomically: readers see either the old or the new file.
func (s *Store) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode document: %w", domain.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", domain.ErrStorage, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %w", domain.ErrStorage, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrStorage, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: rename %s: %w", domain.ErrStorage, tmpName, err)
	}
	return nil
}

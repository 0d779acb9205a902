package study

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/neutronics-workshop/gptools/core/model"
	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// DirStore writes one <id>.json file per record into a directory.
type DirStore struct {
	dir string

	mu          sync.RWMutex
	initialized bool
}

// NewDirStore returns a store writing record files into dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Init creates the record directory.
func (s *DirStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return errors.New("record directory is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create record directory %s", s.dir)
	}
	s.initialized = true
	return nil
}

// Save writes rec to <id>.json, replacing any earlier file.
func (s *DirStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if rec.ID == "" || strings.ContainsAny(rec.ID, `/\`) {
		return errors.NewValidationError("record.id", "invalid record id", rec.ID)
	}
	return model.SaveJSON(&rec, s.path(rec.ID))
}

// Get reads the record with the given ID. ok is false when no file exists.
func (s *DirStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return Record{}, false, errNotInitialized
	}
	var rec Record
	if err := model.LoadJSON(&rec, s.path(id)); err != nil {
		if _, statErr := os.Stat(s.path(id)); os.IsNotExist(statErr) {
			return Record{}, false, nil
		}
		return Record{}, false, errors.Wrapf(err, "read record %s", id)
	}
	return rec, true, nil
}

// List reads every record file, ordered by creation time then ID.
func (s *DirStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "list record files")
	}
	out := make([]Record, 0, len(paths))
	for _, p := range paths {
		var rec Record
		if err := model.LoadJSON(&rec, p); err != nil {
			return nil, errors.Wrapf(err, "read record %s", filepath.Base(p))
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *DirStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

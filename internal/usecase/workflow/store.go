package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"wayfinder/internal/domain"
)

// runHistoryCap bounds the number of runs kept on disk.
const runHistoryCap = 100

const runHistoryFile = "runs.json"

// FileStore is a capped run history persisted as one JSON document.
// Runs are kept in creation order; a save of a known id updates it in place.
type FileStore struct {
	path string

	mu   sync.RWMutex
	runs []domain.WorkflowRun
}

// NewFileStore opens the run history in dir, creating the directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("run history: create dir: %w", err)
	}
	s := &FileStore{path: filepath.Join(dir, runHistoryFile)}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	return s, nil
}

func (s *FileStore) indexOf(id string) int {
	return slices.IndexFunc(s.runs, func(r domain.WorkflowRun) bool { return r.ID == id })
}

func (s *FileStore) SaveRun(_ context.Context, run domain.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(run.ID); i >= 0 {
		s.runs[i] = run
	} else {
		s.runs = append(s.runs, run)
		s.trim()
	}
	return s.flush()
}

func (s *FileStore) GetRun(_ context.Context, id string) (*domain.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, domain.NewSubSystemError("workflow", "FileStore.GetRun", domain.ErrNotFound, id)
	}
	run := s.runs[i]
	return &run, nil
}

func (s *FileStore) ListRuns(_ context.Context, limit int) ([]domain.WorkflowRun, error) {
	s.mu.RLock()
	out := slices.Clone(s.runs)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.WorkflowRun) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.NewSubSystemError("workflow", "FileStore.DeleteRun", domain.ErrNotFound, id)
	}
	s.runs = slices.Delete(s.runs, i, i+1)
	return s.flush()
}

// trim drops the oldest finished runs while over capacity. A running entry
// is never dropped, so the history may briefly exceed the cap.
func (s *FileStore) trim() {
	for len(s.runs) > runHistoryCap {
		oldest := -1
		for i, r := range s.runs {
			if r.Finished() && (oldest < 0 || r.CreatedAt.Before(s.runs[oldest].CreatedAt)) {
				oldest = i
			}
		}
		if oldest < 0 {
			return
		}
		s.runs = slices.Delete(s.runs, oldest, oldest+1)
	}
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return domain.WrapOp("read", err)
	}
	if err := json.Unmarshal(data, &s.runs); err != nil {
		return fmt.Errorf("parse %s: %w", runHistoryFile, err)
	}
	slices.SortStableFunc(s.runs, func(a, b domain.WorkflowRun) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return nil
}

// flush writes the history through a temp file and rename.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.runs, "", "  ")
	if err != nil {
		return domain.WrapOp("marshal", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return domain.WrapOp("write", err)
	}
	return os.Rename(tmp, s.path)
}


package taskmgr

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/fsutil"
)

// Store persists terminal tasks. Implementations need not be safe for
// concurrent use; the Manager serializes calls under its lock.
type Store interface {
	Save(task *domain.AsyncTask) error
	Load() ([]*domain.AsyncTask, error)
	Delete(taskID string) error
}

// FileStore keeps one JSON file per task under a directory
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the task directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

// Save writes tasks/{task_id}.json
func (s *FileStore) Save(task *domain.AsyncTask) error {
	return fsutil.WriteJSON(s.path(task.TaskID), task)
}

// Load reads every task file. Files that cannot be decoded are skipped.
func (s *FileStore) Load() ([]*domain.AsyncTask, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tasks []*domain.AsyncTask
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		var task domain.AsyncTask
		if err := fsutil.ReadJSON(filepath.Join(s.dir, name), &task); err != nil {
			continue
		}
		if task.TaskID == "" {
			continue
		}
		tasks = append(tasks, &task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Started.Before(tasks[j].Started) })
	return tasks, nil
}

// Delete removes the task file if present
func (s *FileStore) Delete(taskID string) error {
	return fsutil.RemoveIfExists(s.path(taskID))
}

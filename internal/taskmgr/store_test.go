package taskmgr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/lintgate/internal/domain"
	"github.com/hochfrequenz/lintgate/internal/taskstore"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	done := time.Now().UTC()
	task := &domain.AsyncTask{TaskID: "a1b2c3d4", Status: domain.TaskFailed, Started: done.Add(-time.Second), Completed: &done, Error: "boom"}
	require.NoError(t, store.Save(task))

	tasks, err := store.Load()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "boom", tasks[0].Error)

	require.NoError(t, store.Delete("a1b2c3d4"))
	require.NoError(t, store.Delete("a1b2c3d4"))
	tasks, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestFileStore_SkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	tasks, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestManager_SQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	store, err := taskstore.New(path)
	require.NoError(t, err)

	m, err := New(store, nil)
	require.NoError(t, err)
	id := m.CreateTask("validate", map[string]any{"files": []any{"a.py"}})
	require.True(t, m.CancelTask(id, "stop"))
	require.NoError(t, store.Close())

	reopened, err := taskstore.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	m2, err := New(reopened, nil)
	require.NoError(t, err)
	task, ok := m2.GetTask(id)
	require.True(t, ok)
	assert.Equal(t, domain.TaskCancelled, task.Status)
	assert.Equal(t, "stop", task.Error)
}

// Package taskstore persists terminal async tasks in SQLite.
package taskstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hochfrequenz/lintgate/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed task persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serializes writers; one connection also keeps :memory: consistent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a task
func (s *Store) Save(task *domain.AsyncTask) error {
	resultJSON, err := marshalNullable(task.Result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	var argsJSON sql.NullString
	if len(task.Arguments) > 0 {
		if argsJSON, err = marshalNullable(task.Arguments); err != nil {
			return fmt.Errorf("encoding arguments: %w", err)
		}
	}

	var completed sql.NullTime
	if task.Completed != nil {
		completed = sql.NullTime{Time: task.Completed.UTC(), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO async_tasks (task_id, status, progress, total, message, started_at, completed_at, result, error, tool_name, arguments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			total = excluded.total,
			message = excluded.message,
			completed_at = excluded.completed_at,
			result = excluded.result,
			error = excluded.error
	`,
		task.TaskID,
		string(task.Status),
		task.Progress,
		task.Total,
		task.Message,
		task.Started.UTC(),
		completed,
		resultJSON,
		task.Error,
		task.ToolName,
		argsJSON,
	)
	return err
}

// Load returns every stored task, oldest first. Rows that fail to decode are skipped.
func (s *Store) Load() ([]*domain.AsyncTask, error) {
	rows, err := s.db.Query(`
		SELECT task_id, status, progress, total, message, started_at, completed_at, result, error, tool_name, arguments
		FROM async_tasks ORDER BY started_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.AsyncTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Delete removes a task. Deleting an unknown id is not an error.
func (s *Store) Delete(taskID string) error {
	_, err := s.db.Exec(`DELETE FROM async_tasks WHERE task_id = ?`, taskID)
	return err
}

// Count returns the number of stored tasks
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM async_tasks`).Scan(&n)
	return n, err
}

func scanTask(rows *sql.Rows) (*domain.AsyncTask, error) {
	var (
		task                      domain.AsyncTask
		status                    string
		message, errMsg, toolName sql.NullString
		resultJSON, argsJSON      sql.NullString
		started                   time.Time
		completed                 sql.NullTime
	)
	if err := rows.Scan(&task.TaskID, &status, &task.Progress, &task.Total, &message,
		&started, &completed, &resultJSON, &errMsg, &toolName, &argsJSON); err != nil {
		return nil, err
	}

	st, ok := domain.ParseTaskStatus(status)
	if !ok {
		return nil, fmt.Errorf("task %s: unknown status %q", task.TaskID, status)
	}
	task.Status = st
	task.Message = message.String
	task.Error = errMsg.String
	task.ToolName = toolName.String
	task.Started = started
	if completed.Valid {
		c := completed.Time
		task.Completed = &c
	}
	if resultJSON.Valid {
		if err := json.Unmarshal([]byte(resultJSON.String), &task.Result); err != nil {
			return nil, err
		}
	}
	if argsJSON.Valid {
		if err := json.Unmarshal([]byte(argsJSON.String), &task.Arguments); err != nil {
			return nil, err
		}
	}
	return &task, nil
}

func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

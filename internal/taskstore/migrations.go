package taskstore

const schema = `
CREATE TABLE IF NOT EXISTS async_tasks (
    task_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    message TEXT,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    result TEXT,
    error TEXT,
    tool_name TEXT,
    arguments TEXT
);

CREATE INDEX IF NOT EXISTS idx_async_tasks_status ON async_tasks(status);
CREATE INDEX IF NOT EXISTS idx_async_tasks_started ON async_tasks(started_at);
`

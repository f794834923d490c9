package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	dataDir    = ".taskboard"
	dbFileName = "taskboard.db"
)

type Config struct {
	Workspace string
}

func dataPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dataDir)
}

// Open creates the workspace data directory if missing and opens the
// SQLite database in WAL mode with foreign keys enforced.
func Open(cfg Config) (*sql.DB, error) {
	dir := dataPath(cfg.Workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		filepath.Join(dir, dbFileName))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// modernc's driver returns SQLITE_BUSY on a second writer; a single
	// connection keeps the API handlers and the scheduler serialized.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Path returns the database file path for the workspace.
func Path(workspace string) string {
	return filepath.Join(dataPath(workspace), dbFileName)
}

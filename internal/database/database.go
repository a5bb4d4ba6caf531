// Package database handles database connections and migrations.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/versery-api/internal/database/migrations"
)

const busyTimeout = 5 * time.Second

// New opens a libsql database.
//
//   - Local file: DATABASE_URL="file:versery.db"
//   - Embedded replica: additionally set TURSO_URL and TURSO_AUTH_TOKEN
//   - libsql server: DATABASE_URL="http://127.0.0.1:8080"
func New(dsn string) (*sql.DB, error) {
	tursoURL := os.Getenv("TURSO_URL")
	tursoToken := os.Getenv("TURSO_AUTH_TOKEN")

	var db *sql.DB
	if tursoURL != "" && tursoToken != "" {
		path := strings.Split(strings.TrimPrefix(dsn, "file:"), "?")[0]
		connector, err := libsql.NewEmbeddedReplicaConnector(path, tursoURL,
			libsql.WithAuthToken(tursoToken),
			libsql.WithReadYourWrites(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Turso connector: %w", err)
		}
		db = sql.OpenDB(connector)
	} else {
		var err error
		db, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if isLocal(dsn) {
		// Webhook ingest, the API and the worker pool all write; wait for the
		// writer lock instead of failing with SQLITE_BUSY.
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func isLocal(dsn string) bool {
	return !strings.HasPrefix(dsn, "http://") && !strings.HasPrefix(dsn, "https://") &&
		!strings.HasPrefix(dsn, "libsql://") && !strings.HasPrefix(dsn, "wss://")
}

// Migrate applies pending migrations.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}

// SchemaVersion returns the latest applied migration and the applied count.
func SchemaVersion(db *sql.DB) (string, int, error) {
	version, err := migrations.LatestVersion(db)
	if err != nil {
		return "", 0, err
	}
	applied, err := migrations.Applied(db)
	if err != nil {
		return "", 0, err
	}
	return version, len(applied), nil
}

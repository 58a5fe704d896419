package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ZanzyTHEbar/cinecritic/internal/config"
)

const dbFileName = "cinecritic.db"

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool applies pool limits to db
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens the SQLite database under cfg.DataDir, migrates it and
// prepares hot statements. Zero pool settings fall back to 25/5/5m.
func NewDB(cfg config.DatabaseConfig) (*DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFileName)
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	maxOpen, maxIdle, lifetime := cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnLifetime
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	pool := NewConnectionPool(db, maxOpen, maxIdle, lifetime)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS titles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			media_type TEXT NOT NULL CHECK (media_type IN ('movie', 'tv')),
			year INTEGER NOT NULL DEFAULT 0,
			poster_url TEXT NOT NULL DEFAULT '',
			overview TEXT NOT NULL DEFAULT '',
			external_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS criteria (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			weight INTEGER NOT NULL,
			parent_id TEXT REFERENCES criteria(id) ON DELETE CASCADE,
			position INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS evaluations (
			id TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL REFERENCES titles(id) ON DELETE CASCADE,
			notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS scores (
			evaluation_id TEXT NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
			criteria_id TEXT NOT NULL REFERENCES criteria(id) ON DELETE CASCADE,
			value REAL NOT NULL,
			UNIQUE(evaluation_id, criteria_id)
		)`,

		`CREATE TABLE IF NOT EXISTS score_cache (
			entity_id TEXT PRIMARY KEY REFERENCES titles(id) ON DELETE CASCADE,
			score REAL, -- NULL when nothing resolvable
			breakdown TEXT NOT NULL DEFAULT '[]', -- JSON top categories
			computed_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS presets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			weights TEXT NOT NULL, -- JSON criterion id -> weight
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS best_of (
			media_type TEXT NOT NULL, -- 'movie', 'tv', 'all'
			entity_id TEXT NOT NULL REFERENCES titles(id) ON DELETE CASCADE,
			rank INTEGER NOT NULL,
			score REAL NOT NULL,
			computed_at DATETIME NOT NULL,
			PRIMARY KEY (media_type, entity_id)
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_titles_external ON titles(media_type, external_id) WHERE external_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_titles_media_type ON titles(media_type, name)`,
		`CREATE INDEX IF NOT EXISTS idx_criteria_parent ON criteria(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_entity ON evaluations(entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_evaluation ON scores(evaluation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_score_cache_score ON score_cache(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_best_of_rank ON best_of(media_type, rank)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"get_title": `SELECT id, name, media_type, year, poster_url, overview, COALESCE(external_id, ''), created_at, updated_at
			FROM titles WHERE id = ?`,

		"list_criteria": `SELECT id, name, weight, parent_id, position
			FROM criteria ORDER BY position ASC, rowid ASC`,

		"get_preset": `SELECT id, name, weights, created_at FROM presets WHERE id = ?`,

		"list_best_of": `SELECT b.media_type, b.entity_id, t.name, t.year, b.rank, b.score, b.computed_at
			FROM best_of b JOIN titles t ON t.id = b.entity_id
			WHERE b.media_type = ? ORDER BY b.rank ASC LIMIT ?`,

		"get_best_of_rank": `SELECT b.media_type, b.entity_id, t.name, t.year, b.rank, b.score, b.computed_at
			FROM best_of b JOIN titles t ON t.id = b.entity_id
			WHERE b.media_type = ? AND b.entity_id = ?`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the prepared statements and the connection
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}

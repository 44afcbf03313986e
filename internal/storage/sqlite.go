package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docent/internal/models"
)

// SQLiteStorage implements MetadataStore in a single SQLite file.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// OpenSQLiteStorage opens an existing metadata file without creating it.
func OpenSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", dbPath)
	}
	return NewSQLiteStorage(dbPath)
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		format_version INTEGER NOT NULL,
		model_id TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		vector_count INTEGER NOT NULL,
		index_type TEXT NOT NULL,
		source_path TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id INTEGER PRIMARY KEY,
		text TEXT NOT NULL,
		start_word INTEGER NOT NULL,
		end_word INTEGER NOT NULL,
		word_count INTEGER NOT NULL,
		char_count INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveIndex replaces the stored metadata and chunks in one transaction.
func (s *SQLiteStorage) SaveIndex(ctx context.Context, meta *IndexMeta, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if meta.FormatVersion == 0 {
		meta.FormatVersion = MetadataFormatVersion
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO index_meta
		 (id, format_version, model_id, dimension, vector_count, index_type, source_path, created_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		meta.FormatVersion, meta.ModelID, meta.Dimension, meta.VectorCount, meta.IndexType, meta.SourcePath, meta.CreatedAt,
	); err != nil {
		return fmt.Errorf("write index metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (chunk_id, text, start_word, end_word, word_count, char_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Text, c.StartWord, c.EndWord, c.WordCount, c.CharCount); err != nil {
			return fmt.Errorf("write chunk %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// LoadIndex returns the stored metadata and chunks. ErrNoMetadata is
// returned when nothing has been saved.
func (s *SQLiteStorage) LoadIndex(ctx context.Context) (*IndexMeta, []models.Chunk, error) {
	var meta IndexMeta
	var source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT format_version, model_id, dimension, vector_count, index_type, source_path, created_at
		 FROM index_meta WHERE id = 1`,
	).Scan(&meta.FormatVersion, &meta.ModelID, &meta.Dimension, &meta.VectorCount, &meta.IndexType, &source, &meta.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNoMetadata
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read index metadata: %w", err)
	}
	meta.SourcePath = source.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, text, start_word, end_word, word_count, char_count
		 FROM chunks ORDER BY chunk_id`,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()
	chunks := make([]models.Chunk, 0, meta.VectorCount)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.Text, &c.StartWord, &c.EndWord, &c.WordCount, &c.CharCount); err != nil {
			return nil, nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return &meta, chunks, nil
}

// CountChunks returns the number of stored chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

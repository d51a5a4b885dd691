// Package store persists extracted feature batches in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/five82/marlin/internal/features"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Key identifies one extraction of a video.
type Key struct {
	VideoPath string
	Model     string
	Reduction string
	KeepSeq   bool
}

// Record is a stored feature batch.
type Record struct {
	Key
	RunID     string
	Batch     features.Batch
	CreatedAt time.Time
}

// Summary describes a stored batch without its data.
type Summary struct {
	Key
	Rows      int
	Dim       int
	CreatedAt time.Time
}

// New opens or creates the database at dbPath.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS features (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_path TEXT NOT NULL,
		model TEXT NOT NULL,
		reduction TEXT NOT NULL,
		keep_seq INTEGER NOT NULL DEFAULT 0,
		run_id TEXT NOT NULL DEFAULT '',
		rows INTEGER NOT NULL,
		dim INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (video_path, model, reduction, keep_seq)
	);

	CREATE INDEX IF NOT EXISTS idx_features_model ON features(model);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Save stores a batch, replacing any earlier batch under the same key.
func (db *DB) Save(ctx context.Context, rec Record) error {
	data, err := encode(rec.Batch)
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO features (video_path, model, reduction, keep_seq, run_id, rows, dim, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (video_path, model, reduction, keep_seq) DO UPDATE SET
			run_id = excluded.run_id,
			rows = excluded.rows,
			dim = excluded.dim,
			data = excluded.data,
			created_at = excluded.created_at`,
		rec.VideoPath, rec.Model, rec.Reduction, rec.KeepSeq, rec.RunID,
		rec.Batch.Len(), rec.Batch.Dim(), data, created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save features for %s: %w", rec.VideoPath, err)
	}
	return nil
}

// Get loads the batch stored under key. The boolean is false when none exists.
func (db *DB) Get(ctx context.Context, key Key) (Record, bool, error) {
	var (
		rec       Record
		rows, dim int
		data      []byte
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT run_id, rows, dim, data, created_at FROM features
		WHERE video_path = ? AND model = ? AND reduction = ? AND keep_seq = ?`,
		key.VideoPath, key.Model, key.Reduction, key.KeepSeq,
	).Scan(&rec.RunID, &rows, &dim, &data, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to load features for %s: %w", key.VideoPath, err)
	}

	batch, err := decode(data, rows, dim)
	if err != nil {
		return Record{}, false, fmt.Errorf("corrupt features for %s: %w", key.VideoPath, err)
	}
	rec.Key = key
	rec.Batch = batch
	return rec, true, nil
}

// List returns summaries of every stored batch ordered by video path.
func (db *DB) List(ctx context.Context) ([]Summary, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT video_path, model, reduction, keep_seq, rows, dim, created_at
		FROM features ORDER BY video_path, model`)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.VideoPath, &s.Model, &s.Reduction, &s.KeepSeq, &s.Rows, &s.Dim, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// encode packs the rows as little-endian float32 values.
func encode(b features.Batch) ([]byte, error) {
	dim := b.Dim()
	out := make([]byte, 0, b.Len()*dim*4)
	for i, row := range b {
		if len(row) != dim {
			return nil, fmt.Errorf("feature row %d has %d values, want %d", i, len(row), dim)
		}
		for _, v := range row {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

func decode(data []byte, rows, dim int) (features.Batch, error) {
	if len(data) != rows*dim*4 {
		return nil, fmt.Errorf("blob has %d bytes, want %d for %dx%d", len(data), rows*dim*4, rows, dim)
	}
	b := make(features.Batch, rows)
	for i := range b {
		row := make([]float32, dim)
		for j := range row {
			off := (i*dim + j) * 4
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		}
		b[i] = row
	}
	return b, nil
}

// Package store persists built mapping documents in SQLite so a corpus file
// is rendered once across process restarts.
//
// Documents are stored as xz-compressed JSON snapshots keyed by the
// fingerprint of the markup they were built from.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/FocuswithJustin/TeiSync/core/errors"
	"github.com/FocuswithJustin/TeiSync/core/ir"
	"github.com/FocuswithJustin/TeiSync/core/mapping"
	"github.com/FocuswithJustin/TeiSync/core/sqlite"
	"github.com/ulikunitz/xz"
)

// Injectable functions for testing.
var (
	jsonMarshal = json.Marshal
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

const schema = `
CREATE TABLE IF NOT EXISTS renders (
	fingerprint TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	payload     BLOB NOT NULL,
	raw_size    INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS renders_accessed ON renders(accessed_at);
`

// Store is a SQLite-backed document store. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Entry describes one stored document.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	RawSize     int64     `json:"raw_size"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
}

// Stats summarizes the store contents.
type Stats struct {
	Path            string `json:"path"`
	Driver          string `json:"driver"`
	Entries         int64  `json:"entries"`
	CompressedBytes int64  `json:"compressed_bytes"`
	RawBytes        int64  `json:"raw_bytes"`
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open store", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewIO("initialize store", path, err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// OpenReadOnly opens an existing store for inspection. Writes fail,
// including the access-time update done by Get.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, errors.NewIO("open store", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewIO("open store", path, err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores doc under fingerprint, replacing any previous entry.
func (s *Store) Put(ctx context.Context, fingerprint, name string, doc *mapping.Document) error {
	if !ir.IsFingerprint(fingerprint) {
		return errors.NewValidation("fingerprint", fmt.Sprintf("not a fingerprint: %q", fingerprint))
	}
	raw, err := jsonMarshal(doc.Snapshot())
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	payload, err := compress(raw)
	if err != nil {
		return err
	}

	now := s.now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO renders (fingerprint, name, payload, raw_size, created_at, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			name = excluded.name,
			payload = excluded.payload,
			raw_size = excluded.raw_size,
			accessed_at = excluded.accessed_at`,
		fingerprint, name, payload, len(raw), now, now)
	if err != nil {
		return errors.NewIO("write render", fingerprint, err)
	}
	return nil
}

// Get loads the document stored under fingerprint and marks it accessed.
func (s *Store) Get(ctx context.Context, fingerprint string) (*mapping.Document, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM renders WHERE fingerprint = ?`, fingerprint).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("render", fingerprint)
	}
	if err != nil {
		return nil, errors.NewIO("read render", fingerprint, err)
	}

	snap, err := decompress(payload)
	if err != nil {
		return nil, &errors.ParseError{Format: "stored render", Path: fingerprint, Message: err.Error(), Err: err}
	}
	doc, err := mapping.FromSnapshot(snap)
	if err != nil {
		return nil, errors.Wrapf(err, "stored render %s", fingerprint)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE renders SET accessed_at = ? WHERE fingerprint = ?`,
		s.now().UnixMilli(), fingerprint); err != nil {
		return nil, errors.NewIO("touch render", fingerprint, err)
	}
	return doc, nil
}

// Delete removes the entry for fingerprint. Deleting a missing entry is not
// an error.
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM renders WHERE fingerprint = ?`, fingerprint); err != nil {
		return errors.NewIO("delete render", fingerprint, err)
	}
	return nil
}

// List returns all entries, most recently accessed first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, name, length(payload), raw_size, created_at, accessed_at
		FROM renders ORDER BY accessed_at DESC, fingerprint`)
	if err != nil {
		return nil, errors.NewIO("list renders", s.path, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created, accessed int64
		if err := rows.Scan(&e.Fingerprint, &e.Name, &e.Size, &e.RawSize, &created, &accessed); err != nil {
			return nil, errors.NewIO("list renders", s.path, err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		e.AccessedAt = time.UnixMilli(accessed).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewIO("list renders", s.path, err)
	}
	return entries, nil
}

// Prune deletes entries not accessed since before. It returns the number of
// entries removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM renders WHERE accessed_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, errors.NewIO("prune renders", s.path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewIO("prune renders", s.path, err)
	}
	return n, nil
}

// Stats returns entry counts and sizes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Path: s.path, Driver: sqlite.DriverType()}
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*), coalesce(sum(length(payload)), 0), coalesce(sum(raw_size), 0)
		FROM renders`).Scan(&st.Entries, &st.CompressedBytes, &st.RawBytes)
	if err != nil {
		return Stats{}, errors.NewIO("stat store", s.path, err)
	}
	return st, nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xzNewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(payload []byte) (mapping.Snapshot, error) {
	var snap mapping.Snapshot
	r, err := xzNewReader(bytes.NewReader(payload))
	if err != nil {
		return snap, fmt.Errorf("failed to create xz reader: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return snap, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

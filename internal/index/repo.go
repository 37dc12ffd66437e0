package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/models"
	"github.com/starford/virt/internal/names"
)

var recordFields = []string{
	"id", "label", "tag", "target", "secret_digest", "title", "description", "verified",
	"keywords", "body", "content_checksum", "created_at", "last_accessed", "indexed_at",
}

var recordColumns = strings.Join(recordFields, ", ")

// qualifiedColumns returns the record columns prefixed with a table alias.
func qualifiedColumns(alias string) string {
	cols := make([]string, len(recordFields))
	for i, f := range recordFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanRecord(s rowScanner) (*models.NameRecord, error) {
	var (
		rec       models.NameRecord
		tag       string
		indexedAt sql.NullTime
	)
	err := s.Scan(&rec.ID, &rec.Label, &tag, &rec.Target, &rec.SecretDigest, &rec.Title,
		&rec.Description, &rec.Verified, &rec.Keywords, &rec.BodyText, &rec.Checksum,
		&rec.CreatedAt, &rec.LastAccessed, &indexedAt)
	if err != nil {
		return nil, err
	}
	rec.Tag = names.Tag(tag)
	if indexedAt.Valid {
		rec.IndexedAt = indexedAt.Time
	}
	return &rec, nil
}

func findRecord(ctx context.Context, q querier, label string, tag names.Tag) (*models.NameRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE label = ? AND tag = ?`, label, string(tag))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: find record: %w", err)
	}
	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Find returns the record for (label, tag) or apperr.ErrNotFound.
func (db *DB) Find(ctx context.Context, label string, tag names.Tag) (*models.NameRecord, error) {
	return findRecord(ctx, db.conn, label, tag)
}

// Exists reports whether a record for (label, tag) is present.
func (db *DB) Exists(ctx context.Context, label string, tag names.Tag) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM records WHERE label = ? AND tag = ?`, label, string(tag)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("index: exists: %w", err)
	}
	return n > 0, nil
}

// Insert stores a new record. The UNIQUE(label, tag) constraint decides
// races between concurrent registrations; the loser gets apperr.ErrConflict.
func (db *DB) Insert(ctx context.Context, rec *models.NameRecord) (*models.NameRecord, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `
		INSERT INTO records (label, tag, target, secret_digest, title, description, verified,
			keywords, body, content_checksum, created_at, last_accessed, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Label, string(rec.Tag), rec.Target, rec.SecretDigest, rec.Title, rec.Description, rec.Verified,
		rec.Keywords, rec.BodyText, rec.Checksum, rec.CreatedAt.UTC(), rec.LastAccessed.UTC(), nullTime(rec.IndexedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s already registered", apperr.ErrConflict, rec.Name())
		}
		return nil, fmt.Errorf("index: insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("index: insert id: %w", err)
	}

	out := *rec
	out.ID = id
	if err := ftsUpsert(ctx, tx, &out); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s already registered", apperr.ErrConflict, rec.Name())
		}
		return nil, fmt.Errorf("index: commit: %w", err)
	}
	return &out, nil
}

// Save persists the mutable fields of an existing record.
func (db *DB) Save(ctx context.Context, rec *models.NameRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := saveTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func saveTx(ctx context.Context, tx *sql.Tx, rec *models.NameRecord) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE records SET
			target        = ?,
			title         = ?,
			description   = ?,
			verified      = ?,
			last_accessed = ?
		WHERE id = ?
	`, rec.Target, rec.Title, rec.Description, rec.Verified, rec.LastAccessed.UTC(), rec.ID)
	if err != nil {
		return fmt.Errorf("index: save record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return ftsUpsert(ctx, tx, rec)
}

// Remove deletes a record and its search entry permanently.
func (db *DB) Remove(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := removeTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func removeTx(ctx context.Context, tx *sql.Tx, id int64) error {
	ftsDelete(ctx, tx, id)
	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: remove record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Touch sets last_accessed on (label, tag) and returns the refreshed record.
func (db *DB) Touch(ctx context.Context, label string, tag names.Tag, at time.Time) (*models.NameRecord, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE records SET last_accessed = ? WHERE label = ? AND tag = ?`,
		at.UTC(), label, string(tag))
	if err != nil {
		return nil, fmt.Errorf("index: touch record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.ErrNotFound
	}
	rec, err := findRecord(ctx, tx, label, tag)
	if err != nil {
		return nil, err
	}
	return rec, tx.Commit()
}

// Mutate runs fn against the current record for (label, tag) inside one
// write transaction, then saves or deletes it according to fn's answer.
func (db *DB) Mutate(ctx context.Context, label string, tag names.Tag, fn MutateFunc) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rec, err := findRecord(ctx, tx, label, tag)
	if err != nil {
		return err
	}
	action, err := fn(rec)
	if err != nil {
		return err
	}
	switch action {
	case MutateSave:
		err = saveTx(ctx, tx, rec)
	case MutateDelete:
		err = removeTx(ctx, tx, rec.ID)
	default:
		err = fmt.Errorf("index: unknown mutate action %d", action)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// List returns every record ordered by id.
func (db *DB) List(ctx context.Context) ([]models.NameRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("index: list: %w", err)
	}
	defer rows.Close()

	var out []models.NameRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SetContent stores crawled keywords and body text for record id and
// refreshes its search entry.
func (db *DB) SetContent(ctx context.Context, id int64, keywords, body, checksum string, at time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE records SET keywords = ?, body = ?, content_checksum = ?, indexed_at = ?
		WHERE id = ?
	`, keywords, body, checksum, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("index: set content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
	if err != nil {
		return fmt.Errorf("index: reload record: %w", err)
	}
	if err := ftsUpsert(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/virt/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			record_id UNINDEXED,
			title,
			keywords,
			description,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, rec *models.NameRecord) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM records_fts WHERE record_id = ?`, rec.ID)
	_, err := tx.ExecContext(ctx, `INSERT INTO records_fts (record_id, title, keywords, description, body) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Keywords, rec.Description, rec.BodyText)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id int64) {
	_, _ = tx.ExecContext(ctx, `DELETE FROM records_fts WHERE record_id = ?`, id)
}

// Search ranks records with bm25 using the field weights; ties fall back to
// insertion order.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.NameRecord, error) {
	limit = clampLimit(limit)
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM records_fts f
		JOIN records r ON r.id = f.record_id
		WHERE records_fts MATCH ?
		ORDER BY bm25(records_fts, 0.0, %g, %g, %g, %g), r.id
		LIMIT ?
	`, qualifiedColumns("r"), WeightTitle, WeightKeywords, WeightDescription, WeightBody),
		strings.Join(quoted, " OR "), limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
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

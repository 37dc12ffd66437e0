//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/virt/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search scans the records table with LIKE.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _ *models.NameRecord) error {
	// Text fields already live in the records table; nothing extra to do.
	return nil
}

func ftsDelete(_ context.Context, _ *sql.Tx, _ int64) {}

// Search performs a LIKE prefilter and ranks hits in Go with the same field
// weights FTS5 uses. Equal scores keep insertion order.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.NameRecord, error) {
	limit = clampLimit(limit)
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	for _, term := range terms {
		like := "%" + escapeLike(term) + "%"
		clauses = append(clauses, `(title LIKE ? ESCAPE '\' OR keywords LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like, like)
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+strings.Join(clauses, " OR ")+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	type hit struct {
		rec   models.NameRecord
		score float64
	}
	var hits []hit
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit{rec: *rec, score: relevance(rec, terms)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]models.NameRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out, nil
}

func relevance(rec *models.NameRecord, terms []string) float64 {
	fields := [...]struct {
		text   string
		weight float64
	}{
		{rec.Title, WeightTitle},
		{rec.Keywords, WeightKeywords},
		{rec.Description, WeightDescription},
		{rec.BodyText, WeightBody},
	}
	var score float64
	for _, term := range terms {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f.text), term) {
				score += f.weight
			}
		}
	}
	return score
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

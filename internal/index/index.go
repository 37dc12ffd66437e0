package index

import (
	"context"
	"strings"
	"time"

	"github.com/starford/virt/internal/models"
	"github.com/starford/virt/internal/names"
)

// MaxSearchLimit caps the number of search hits returned.
const MaxSearchLimit = 20

// MutateAction tells Mutate what to do with the record after the callback.
type MutateAction int

const (
	// MutateSave persists the record as modified by the callback.
	MutateSave MutateAction = iota + 1
	// MutateDelete removes the record.
	MutateDelete
)

// MutateFunc inspects and optionally modifies rec inside the transaction.
// Returning an error rolls the transaction back.
type MutateFunc func(rec *models.NameRecord) (MutateAction, error)

// RecordStore defines the registry storage operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type RecordStore interface {
	Find(ctx context.Context, label string, tag names.Tag) (*models.NameRecord, error)
	Exists(ctx context.Context, label string, tag names.Tag) (bool, error)
	Insert(ctx context.Context, rec *models.NameRecord) (*models.NameRecord, error)
	Save(ctx context.Context, rec *models.NameRecord) error
	Remove(ctx context.Context, id int64) error
	Touch(ctx context.Context, label string, tag names.Tag, at time.Time) (*models.NameRecord, error)
	Mutate(ctx context.Context, label string, tag names.Tag, fn MutateFunc) error
	Search(ctx context.Context, query string, limit int) ([]models.NameRecord, error)
	List(ctx context.Context) ([]models.NameRecord, error)
	SetContent(ctx context.Context, id int64, keywords, body, checksum string, at time.Time) error
	Ping(ctx context.Context) error
	Close() error
}

// Verify *DB satisfies RecordStore at compile time.
var _ RecordStore = (*DB)(nil)

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

// Field weights used by search ranking.
const (
	WeightTitle       = 10.0
	WeightKeywords    = 5.0
	WeightDescription = 3.0
	WeightBody        = 1.0
)

// searchTerms splits a query into lowercase, deduplicated terms.
func searchTerms(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Package models defines the domain types for the VIRT registry.
package models

import (
	"time"

	"github.com/starford/virt/internal/names"
)

// NameRecord is one registered name and its resolution target.
type NameRecord struct {
	ID           int64     `json:"id"`
	Label        string    `json:"label"`
	Tag          names.Tag `json:"tag"`
	Target       string    `json:"target"`
	SecretDigest string    `json:"-"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Verified     bool      `json:"verified"`
	Keywords     string    `json:"keywords,omitempty"`
	BodyText     string    `json:"-"`
	Checksum     string    `json:"-"` // checksum of the last indexed content
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	IndexedAt    time.Time `json:"indexed_at,omitzero"`
}

// Name returns the composed "label.tag" form.
func (r *NameRecord) Name() string {
	return names.Compose(r.Label, r.Tag)
}

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/starford/virt/internal/apperr"
)

// Embedded implements Provider over an fs.FS such as an embed.FS.
type Embedded struct {
	fsys fs.FS
}

// NewEmbedded wraps fsys. Paths are resolved relative to its root.
func NewEmbedded(fsys fs.FS) *Embedded {
	return &Embedded{fsys: fsys}
}

// Read returns the bytes of path. Paths that are not valid fs paths, such
// as ones containing "..", are rejected.
func (e *Embedded) Read(path string) ([]byte, error) {
	path = strings.TrimPrefix(path, "/")
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: invalid asset path: %s", apperr.ErrDenied, path)
	}
	data, err := fs.ReadFile(e.fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(path)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read embedded %s: %w", path, err)
	}
	return data, nil
}

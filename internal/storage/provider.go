// Package storage serves the bundled system-name assets, optionally
// overridden by a directory on disk.
package storage

// Provider reads asset files by slash-separated relative path, for example
// "register.at/index.html". A missing file yields an error wrapping
// apperr.ErrNotFound.
type Provider interface {
	Read(path string) ([]byte, error)
}

// Layered tries each provider in order and returns the first hit. Errors
// other than a missing file stop the search.
type Layered []Provider

// Read implements Provider.
func (l Layered) Read(path string) ([]byte, error) {
	var lastErr error = notFound(path)
	for _, p := range l {
		if p == nil {
			continue
		}
		data, err := p.Read(path)
		if err == nil {
			return data, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

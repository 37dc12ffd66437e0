package registrar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/names"
)

// Metadata length limits.
const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
)

// RegisterRequest carries the fields of a new registration.
type RegisterRequest struct {
	Label       string `json:"label"`
	Tag         string `json:"tag"`
	Target      string `json:"target"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateRequest carries a partial update. Nil optional fields are left
// untouched; a non-nil empty Title or Description clears that field.
type UpdateRequest struct {
	Label       string  `json:"label"`
	Tag         string  `json:"tag"`
	Secret      string  `json:"secret"`
	Target      *string `json:"target,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// DeleteRequest identifies a record and proves ownership of it.
type DeleteRequest struct {
	Label  string `json:"label"`
	Tag    string `json:"tag"`
	Secret string `json:"secret"`
}

// Availability answers a name check.
type Availability struct {
	Label     string    `json:"label"`
	Tag       names.Tag `json:"tag"`
	Available bool      `json:"available"`
	Message   string    `json:"message"`
}

// Registration is returned once, right after a name is registered. It is
// the only place the plaintext secret ever appears.
type Registration struct {
	Success   bool   `json:"success"`
	Name      string `json:"name"`
	SecretKey string `json:"secretKey"`
	Message   string `json:"message"`
}

// RecordSummary describes a record after an update.
type RecordSummary struct {
	Success      bool      `json:"success"`
	Name         string    `json:"name"`
	Label        string    `json:"label"`
	Tag          names.Tag `json:"tag"`
	Target       string    `json:"target"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	LastAccessed time.Time `json:"lastAccessed"`
	Message      string    `json:"message"`
}

// LookupResult is the resolution payload for a registered name.
type LookupResult struct {
	Label        string    `json:"label"`
	Tag          names.Tag `json:"tag"`
	Target       string    `json:"target"`
	RawBase      string    `json:"rawBase"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// SearchHit carries only display fields; targets and secrets never leave
// the registry through search.
type SearchHit struct {
	Label       string    `json:"label"`
	Tag         names.Tag `json:"tag"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// normalizeLabel lowercases and trims a label before validation.
func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var labelRule = validation.By(func(value interface{}) error {
	v, _ := validation.Indirect(value)
	s, _ := v.(string)
	if s == "" || names.ValidLabel(s) {
		return nil
	}
	return fmt.Errorf("must be %d-%d lowercase letters, digits or inner hyphens", names.MinLabelLen, names.MaxLabelLen)
})

var targetRule = validation.By(func(value interface{}) error {
	v, _ := validation.Indirect(value)
	s, _ := v.(string)
	if names.IsAcceptableTarget(s) {
		return nil
	}
	return errors.New("must be an https:// URL or an IPv4 address with optional port")
})

// invalid wraps an ozzo validation error into apperr.ErrInvalidInput.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, err.Error())
}

// Validate checks required fields, the tag, and field shapes, in that
// order. It returns the parsed tag.
func (r *RegisterRequest) Validate() (names.Tag, error) {
	r.Label = normalizeLabel(r.Label)
	r.Target = strings.TrimSpace(r.Target)

	if err := validation.ValidateStruct(r,
		validation.Field(&r.Label, validation.Required),
		validation.Field(&r.Tag, validation.Required),
		validation.Field(&r.Target, validation.Required),
	); err != nil {
		return "", invalid(err)
	}
	tag, err := names.ParseTag(r.Tag)
	if err != nil {
		return "", err
	}
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Label, labelRule),
		validation.Field(&r.Target, targetRule),
		validation.Field(&r.Title, validation.RuneLength(0, MaxTitleLen)),
		validation.Field(&r.Description, validation.RuneLength(0, MaxDescriptionLen)),
	); err != nil {
		return "", invalid(err)
	}
	return tag, nil
}

// Validate checks required fields, the tag, and the provided optional
// fields. It returns the parsed tag.
func (r *UpdateRequest) Validate() (names.Tag, error) {
	r.Label = normalizeLabel(r.Label)

	if err := validation.ValidateStruct(r,
		validation.Field(&r.Label, validation.Required),
		validation.Field(&r.Tag, validation.Required),
		validation.Field(&r.Secret, validation.Required),
	); err != nil {
		return "", invalid(err)
	}
	tag, err := names.ParseTag(r.Tag)
	if err != nil {
		return "", err
	}
	if r.Target != nil {
		trimmed := strings.TrimSpace(*r.Target)
		r.Target = &trimmed
	}
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Target, validation.When(r.Target != nil, targetRule)),
		validation.Field(&r.Title, validation.RuneLength(0, MaxTitleLen)),
		validation.Field(&r.Description, validation.RuneLength(0, MaxDescriptionLen)),
	); err != nil {
		return "", invalid(err)
	}
	return tag, nil
}

// Validate checks required fields and the tag.
func (r *DeleteRequest) Validate() (names.Tag, error) {
	r.Label = normalizeLabel(r.Label)

	if err := validation.ValidateStruct(r,
		validation.Field(&r.Label, validation.Required),
		validation.Field(&r.Tag, validation.Required),
		validation.Field(&r.Secret, validation.Required),
	); err != nil {
		return "", invalid(err)
	}
	return names.ParseTag(r.Tag)
}

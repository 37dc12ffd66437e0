// Package registrar implements registration, lookup and ownership of VIRT
// names on top of the registry store.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/index"
	"github.com/starford/virt/internal/models"
	"github.com/starford/virt/internal/names"
)

// Registry event kinds passed to a Publisher.
const (
	EventRegistered = "registered"
	EventUpdated    = "updated"
	EventDeleted    = "deleted"
)

// Publisher receives a notification after every successful mutation.
type Publisher interface {
	PublishNameEvent(kind, name string)
}

// Service coordinates validation, secret handling and the registry store.
type Service struct {
	store  index.RecordStore
	cost   int
	now    func() time.Time
	events Publisher
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost sets the cost used when hashing new secrets.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPublisher sets the receiver of registry events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a registrar over store.
func NewService(store index.RecordStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cost < bcrypt.MinCost || s.cost > bcrypt.MaxCost {
		s.cost = bcrypt.DefaultCost
	}
	return s
}

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Check reports whether label.tag is still free.
func (s *Service) Check(ctx context.Context, label, tagStr string) (*Availability, error) {
	tag, err := names.ParseTag(tagStr)
	if err != nil {
		return nil, err
	}
	label = normalizeLabel(label)
	if !names.ValidLabel(label) {
		return nil, fmt.Errorf("%w: label must be %d-%d lowercase letters, digits or inner hyphens",
			apperr.ErrInvalidInput, names.MinLabelLen, names.MaxLabelLen)
	}
	taken, err := s.store.Exists(ctx, label, tag)
	if err != nil {
		return nil, err
	}
	a := &Availability{Label: label, Tag: tag, Available: !taken}
	name := names.Compose(label, tag)
	if taken {
		a.Message = name + " is already registered"
	} else {
		a.Message = name + " is available"
	}
	return a, nil
}

// Register creates a new record and returns its plaintext secret. The
// secret is not stored, logged or retrievable afterwards.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	tag, err := req.Validate()
	if err != nil {
		return nil, err
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	digest, err := hashSecret(secret, s.cost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec, err := s.store.Insert(ctx, &models.NameRecord{
		Label:        req.Label,
		Tag:          tag,
		Target:       req.Target,
		SecretDigest: digest,
		Title:        req.Title,
		Description:  req.Description,
		CreatedAt:    now,
		LastAccessed: now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("name registered", slog.String("name", rec.Name()))
	s.publish(EventRegistered, rec.Name())

	return &Registration{
		Success:   true,
		Name:      rec.Name(),
		SecretKey: secret,
		Message:   "Registered " + rec.Name() + ". Store the secret key now; it cannot be shown again.",
	}, nil
}

// Update applies the provided fields after verifying the secret. The
// verification and the write happen in one store transaction.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*RecordSummary, error) {
	tag, err := req.Validate()
	if err != nil {
		return nil, err
	}

	var updated models.NameRecord
	err = s.store.Mutate(ctx, req.Label, tag, func(rec *models.NameRecord) (index.MutateAction, error) {
		if err := verifySecret(rec.SecretDigest, req.Secret); err != nil {
			return 0, err
		}
		if req.Target != nil {
			rec.Target = *req.Target
		}
		if req.Title != nil {
			rec.Title = *req.Title
		}
		if req.Description != nil {
			rec.Description = *req.Description
		}
		rec.LastAccessed = s.now().UTC()
		updated = *rec
		return index.MutateSave, nil
	})
	if err != nil {
		s.logFailure("update", req.Label, tag, err)
		return nil, err
	}

	s.logger.Info("name updated", slog.String("name", updated.Name()))
	s.publish(EventUpdated, updated.Name())

	return &RecordSummary{
		Success:      true,
		Name:         updated.Name(),
		Label:        updated.Label,
		Tag:          updated.Tag,
		Target:       updated.Target,
		Title:        updated.Title,
		Description:  updated.Description,
		LastAccessed: updated.LastAccessed,
		Message:      "Updated " + updated.Name(),
	}, nil
}

// Delete permanently removes a record after verifying the secret.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	tag, err := req.Validate()
	if err != nil {
		return err
	}

	err = s.store.Mutate(ctx, req.Label, tag, func(rec *models.NameRecord) (index.MutateAction, error) {
		if err := verifySecret(rec.SecretDigest, req.Secret); err != nil {
			return 0, err
		}
		return index.MutateDelete, nil
	})
	if err != nil {
		s.logFailure("delete", req.Label, tag, err)
		return err
	}

	name := names.Compose(req.Label, tag)
	s.logger.Info("name deleted", slog.String("name", name))
	s.publish(EventDeleted, name)
	return nil
}

// Lookup resolves label.tag, refreshing its last access time.
func (s *Service) Lookup(ctx context.Context, label, tagStr string) (*LookupResult, error) {
	tag, err := names.ParseTag(tagStr)
	if err != nil {
		return nil, err
	}
	label = normalizeLabel(label)
	if label == "" {
		return nil, fmt.Errorf("%w: label is required", apperr.ErrInvalidInput)
	}

	rec, err := s.store.Touch(ctx, label, tag, s.now())
	if err != nil {
		return nil, err
	}
	return &LookupResult{
		Label:        rec.Label,
		Tag:          rec.Tag,
		Target:       rec.Target,
		RawBase:      RawBase(rec.Target),
		Title:        rec.Title,
		Description:  rec.Description,
		Verified:     rec.Verified,
		CreatedAt:    rec.CreatedAt,
		LastAccessed: rec.LastAccessed,
	}, nil
}

// Search returns display fields of the records best matching query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	recs, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, len(recs))
	for i, r := range recs {
		hits[i] = SearchHit{
			Label:       r.Label,
			Tag:         r.Tag,
			Title:       r.Title,
			Description: r.Description,
		}
	}
	return hits, nil
}

func (s *Service) publish(kind, name string) {
	if s.events != nil {
		s.events.PublishNameEvent(kind, name)
	}
}

func (s *Service) logFailure(op, label string, tag names.Tag, err error) {
	if errors.Is(err, apperr.ErrUnauthorized) {
		s.logger.Warn("secret mismatch", slog.String("op", op), slog.String("name", names.Compose(label, tag)))
	}
}

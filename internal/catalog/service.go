package catalog

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/atelier-erp/atelier-erp/internal/shared"
)

// RepositoryPort abstracts the reference repository for the service.
type RepositoryPort interface {
	GetByExternalCode(ctx context.Context, externalCode string) (Reference, error)
	Upsert(ctx context.Context, input UpsertInput) (Reference, error)
	List(ctx context.Context, filter ListFilter) ([]Reference, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service resolves external material codes through a read-through cache.
// Concurrent resolutions of the same code share one repository round trip.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	audit AuditPort
	group singleflight.Group
}

// NewService builds Service. Cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, audit AuditPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit}
}

// Resolve maps an external code to its internal identity. The external code is
// normalised (trimmed, upper-cased) before lookup.
func (s *Service) Resolve(ctx context.Context, externalCode string) (Reference, error) {
	code := normalise(externalCode)
	if code == "" {
		return Reference{}, ErrInvalidReference
	}
	value, err, _ := s.group.Do(code, func() (any, error) {
		return s.cache.Fetch(ctx, code, func(ctx context.Context) (Reference, error) {
			return s.repo.GetByExternalCode(ctx, code)
		})
	})
	if err != nil {
		return Reference{}, err
	}
	return value.(Reference), nil
}

// Upsert creates or updates a mapping and refreshes its cache entry.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (Reference, error) {
	input.ExternalCode = normalise(input.ExternalCode)
	input.InternalCode = normalise(input.InternalCode)
	input.Category = normalise(input.Category)
	input.DefaultSupplier = strings.TrimSpace(input.DefaultSupplier)
	if input.ExternalCode == "" || input.InternalCode == "" {
		return Reference{}, ErrInvalidReference
	}
	ref, err := s.repo.Upsert(ctx, input)
	if err != nil {
		return Reference{}, err
	}
	if err := s.cache.Put(ctx, ref); err != nil {
		// The mapping is committed; a stale cache entry ages out with the TTL.
		_ = s.cache.Invalidate(ctx, ref.ExternalCode)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "catalog:upsert",
			Entity:   "material_reference",
			EntityID: ref.ExternalCode,
			Meta:     map[string]any{"internal_code": ref.InternalCode, "category": ref.Category},
		})
	}
	return ref, nil
}

// List returns mappings for browsing and warmup.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Reference, error) {
	filter.Category = normalise(filter.Category)
	return s.repo.List(ctx, filter)
}

// Warmup primes the cache with every known mapping. Used by the background
// worker after deploys so the first morning receipts do not pay lookups.
func (s *Service) Warmup(ctx context.Context) (int, error) {
	refs, err := s.repo.List(ctx, ListFilter{Limit: 500})
	if err != nil {
		return 0, fmt.Errorf("catalog: warmup list: %w", err)
	}
	for _, ref := range refs {
		if err := s.cache.Put(ctx, ref); err != nil {
			return 0, fmt.Errorf("catalog: warmup put %s: %w", ref.ExternalCode, err)
		}
	}
	return len(refs), nil
}

func normalise(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory RepositoryPort that counts lookups, so tests can
// observe cache hits.
type memoryRepo struct {
	refs    map[string]Reference
	lookups int
}

func newMemoryRepo(refs ...Reference) *memoryRepo {
	m := &memoryRepo{refs: make(map[string]Reference)}
	for _, ref := range refs {
		m.refs[ref.ExternalCode] = ref
	}
	return m
}

func (m *memoryRepo) GetByExternalCode(_ context.Context, externalCode string) (Reference, error) {
	m.lookups++
	ref, ok := m.refs[externalCode]
	if !ok {
		return Reference{}, ErrReferenceNotFound
	}
	return ref, nil
}

func (m *memoryRepo) Upsert(_ context.Context, input UpsertInput) (Reference, error) {
	ref := Reference{
		ID:              int64(len(m.refs) + 1),
		ExternalCode:    input.ExternalCode,
		InternalCode:    input.InternalCode,
		Category:        input.Category,
		DefaultSupplier: input.DefaultSupplier,
		UpdatedAt:       time.Now().UTC(),
	}
	m.refs[ref.ExternalCode] = ref
	return ref, nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Reference, error) {
	var out []Reference
	for _, ref := range m.refs {
		if filter.Category != "" && ref.Category != filter.Category {
			continue
		}
		out = append(out, ref)
	}
	return out, nil
}

func testCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCache(client, ttl), mr
}

func sampleRef() Reference {
	return Reference{
		ID:              1,
		ExternalCode:    "EXT-TISSU-01",
		InternalCode:    "TIS-001",
		Category:        "CF",
		DefaultSupplier: "Textiles Durand",
	}
}

func TestResolveHitsRepositoryOnceThenCache(t *testing.T) {
	repo := newMemoryRepo(sampleRef())
	cache, _ := testCache(t, time.Minute)
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, "EXT-TISSU-01")
	require.NoError(t, err)
	assert.Equal(t, "TIS-001", first.InternalCode)
	assert.Equal(t, 1, repo.lookups)

	second, err := svc.Resolve(ctx, "ext-tissu-01 ")
	require.NoError(t, err)
	assert.Equal(t, first.InternalCode, second.InternalCode)
	assert.Equal(t, 1, repo.lookups, "second resolve must be served from cache")
}

func TestResolveCacheEntryExpires(t *testing.T) {
	repo := newMemoryRepo(sampleRef())
	cache, mr := testCache(t, time.Minute)
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "EXT-TISSU-01")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = svc.Resolve(ctx, "EXT-TISSU-01")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lookups, "expired entry must be reloaded")
}

func TestResolveUnknownCodeNotCached(t *testing.T) {
	repo := newMemoryRepo()
	cache, _ := testCache(t, time.Minute)
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "EXT-UNKNOWN")
	assert.ErrorIs(t, err, ErrReferenceNotFound)

	_, err = svc.Resolve(ctx, "EXT-UNKNOWN")
	assert.ErrorIs(t, err, ErrReferenceNotFound)
	assert.Equal(t, 2, repo.lookups, "misses must not be cached")
}

func TestResolveWithoutCache(t *testing.T) {
	repo := newMemoryRepo(sampleRef())
	svc := NewService(repo, NewCache(nil, 0), nil)

	ref, err := svc.Resolve(context.Background(), "EXT-TISSU-01")
	require.NoError(t, err)
	assert.Equal(t, "TIS-001", ref.InternalCode)
}

func TestResolveRejectsEmptyCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), NewCache(nil, 0), nil)

	_, err := svc.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestUpsertRefreshesCache(t *testing.T) {
	repo := newMemoryRepo(sampleRef())
	cache, _ := testCache(t, time.Minute)
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "EXT-TISSU-01")
	require.NoError(t, err)

	_, err = svc.Upsert(ctx, UpsertInput{
		ExternalCode:    "ext-tissu-01",
		InternalCode:    "tis-002",
		Category:        "dc",
		DefaultSupplier: "Textiles Durand",
	})
	require.NoError(t, err)

	ref, err := svc.Resolve(ctx, "EXT-TISSU-01")
	require.NoError(t, err)
	assert.Equal(t, "TIS-002", ref.InternalCode)
	assert.Equal(t, "DC", ref.Category)
	assert.Equal(t, 1, repo.lookups, "upsert must prime the cache, not invalidate into a reload")
}

func TestUpsertValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), NewCache(nil, 0), nil)

	_, err := svc.Upsert(context.Background(), UpsertInput{ExternalCode: "EXT-1"})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestWarmupPrimesEveryMapping(t *testing.T) {
	repo := newMemoryRepo(sampleRef(), Reference{
		ID: 2, ExternalCode: "EXT-CUIR-03", InternalCode: "CUI-003", Category: "AS",
	})
	cache, _ := testCache(t, time.Minute)
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	n, err := svc.Warmup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lookupsBefore := repo.lookups
	_, err = svc.Resolve(ctx, "EXT-CUIR-03")
	require.NoError(t, err)
	assert.Equal(t, lookupsBefore, repo.lookups, "warmed entries must resolve without repository lookups")
}

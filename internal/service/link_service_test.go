package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kirved/linkly/internal/filter"
	"github.com/kirved/linkly/internal/model"
	"github.com/kirved/linkly/internal/quota"
	"github.com/kirved/linkly/internal/repository"
	"github.com/kirved/linkly/internal/utils"
)

var codeShape = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

// mapCounterStore is a minimal quota.CounterStore for tests; TTL expiry is
// covered in the quota package.
type mapCounterStore struct {
	counts map[string]int64
}

func (s *mapCounterStore) Count(_ context.Context, key string) (int64, error) {
	return s.counts[key], nil
}

func (s *mapCounterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.counts[key]++
	return s.counts[key], nil
}

type testEnv struct {
	svc   *LinkService
	store *repository.MemStore
	bloom *filter.CodeFilter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ids, err := utils.NewIDGenerator(0, 0)
	require.NoError(t, err)

	store := repository.NewMemStore()
	bloom := filter.NewCodeFilter(10000, 0.001)
	limiter := quota.NewLimiter(&mapCounterStore{counts: make(map[string]int64)}, 10, 24*time.Hour, zap.NewNop())

	return &testEnv{
		svc:   NewLinkService(store, limiter, bloom, ids, zap.NewNop()),
		store: store,
		bloom: bloom,
	}
}

func TestCreateLinkGeneratedCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	link, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		Identity:    "203.0.113.7",
	})
	require.NoError(t, err)

	assert.Regexp(t, codeShape, link.ShortCode)
	assert.NotZero(t, link.ID)
	assert.True(t, link.IsActive)
	assert.False(t, link.IsFlagged)
	assert.EqualValues(t, 0, link.VisitCount)
	assert.Nil(t, link.OwnerID)
}

func TestCreateLinkUniqueCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		link, err := env.svc.CreateLink(ctx, CreateLinkParams{
			OriginalURL: "https://example.com/page/" + uuid.NewString(),
		})
		require.NoError(t, err)
		_, dup := seen[link.ShortCode]
		assert.False(t, dup, "code %s allocated twice", link.ShortCode)
		seen[link.ShortCode] = struct{}{}
	}
}

func TestCreateLinkCustomCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	link, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		CustomCode:  "my-link_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-link_1", link.ShortCode)
}

func TestCreateLinkCustomCodeTaken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		CustomCode:  "my-code",
	})
	require.NoError(t, err)

	_, err = env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://other.example.com",
		CustomCode:  "my-code",
	})
	assert.ErrorIs(t, err, ErrCodeTaken)

	// The losing request must not have written anything.
	stored, err := env.store.GetByOriginalURL(ctx, "https://other.example.com", nil)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCreateLinkCustomCodeInvalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		CustomCode:  "ab",
	})
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		CustomCode:  "bad code!",
	})
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestCreateLinkInvalidURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, raw := range []string{"", "not-a-url", "ftp://example.com/file", "http://"} {
		_, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: raw})
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
}

func TestCreateLinkDedup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)

	second, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.ShortCode, second.ShortCode, "repeat anonymous submission should reuse the code")
}

func TestCreateLinkDedupPerOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	aliceLink, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		OwnerID:     &alice,
	})
	require.NoError(t, err)

	// Same owner, same URL: deduped.
	again, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		OwnerID:     &alice,
	})
	require.NoError(t, err)
	assert.Equal(t, aliceLink.ShortCode, again.ShortCode)

	// Different owner: gets a link of their own.
	bobLink, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		OwnerID:     &bob,
	})
	require.NoError(t, err)
	assert.NotEqual(t, aliceLink.ShortCode, bobLink.ShortCode)
}

func TestCreateLinkDedupSkippedForCustomCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)

	custom, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		CustomCode:  "branded",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ShortCode, custom.ShortCode)
	assert.Equal(t, "branded", custom.ShortCode)
}

func TestCreateLinkFlagsMaliciousDestination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	link, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "http://192.168.1.1/payload.exe",
	})
	require.NoError(t, err, "malicious destinations are flagged, not rejected")
	assert.True(t, link.IsFlagged)
	assert.NotEmpty(t, link.FlagReason)
}

func TestCreateLinkQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := env.svc.CreateLink(ctx, CreateLinkParams{
			OriginalURL: "https://example.com/page/" + uuid.NewString(),
			Identity:    "203.0.113.7",
		})
		require.NoError(t, err, "creation %d should be under quota", i+1)
	}

	_, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com/one-more",
		Identity:    "203.0.113.7",
	})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Authenticated creations bypass the anonymous quota.
	owner := uuid.New()
	_, err = env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com/authed",
		OwnerID:     &owner,
		Identity:    "203.0.113.7",
	})
	assert.NoError(t, err)
}

func TestCreateLinkDedupDoesNotConsumeQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateLink(ctx, CreateLinkParams{
		OriginalURL: "https://example.com",
		Identity:    "203.0.113.7",
	})
	require.NoError(t, err)

	// Resubmitting the same URL returns the existing link and should not
	// burn quota; only the first creation counts.
	for i := 0; i < 20; i++ {
		_, err := env.svc.CreateLink(ctx, CreateLinkParams{
			OriginalURL: "https://example.com",
			Identity:    "203.0.113.7",
		})
		require.NoError(t, err)
	}
}

// dupStore forces every insert into a duplicate-key failure to exercise the
// retry budget.
type dupStore struct {
	*repository.MemStore
}

func (s *dupStore) Create(context.Context, *model.Link) error {
	return repository.ErrDuplicateCode
}

func TestCreateLinkGenerationExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.svc.store = &dupStore{MemStore: repository.NewMemStore()}
	ctx := context.Background()

	_, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: "https://example.com"})
	assert.ErrorIs(t, err, ErrGenerationExhausted)
}

func TestRecordVisit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	link, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)

	updated, err := env.svc.RecordVisit(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated.VisitCount)

	_, err = env.svc.RecordVisit(ctx, "nothere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetActiveAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	link, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)

	toggled, err := env.svc.SetActive(ctx, link.ShortCode, false)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	require.NoError(t, env.svc.DeleteLink(ctx, link.ShortCode))

	_, err = env.svc.GetLink(ctx, link.ShortCode)
	assert.ErrorIs(t, err, ErrNotFound)

	err = env.svc.DeleteLink(ctx, link.ShortCode)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetActivePreservesVisitCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	link, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)

	// Visits landing between a caller reading the link and toggling it must
	// survive the toggle: the update is column-scoped, never a full-row write
	// of a stale copy.
	stale, err := env.svc.GetLink(ctx, link.ShortCode)
	require.NoError(t, err)
	require.EqualValues(t, 0, stale.VisitCount)

	_, err = env.svc.RecordVisit(ctx, link.ShortCode)
	require.NoError(t, err)

	toggled, err := env.svc.SetActive(ctx, stale.ShortCode, false)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)
	assert.EqualValues(t, 1, toggled.VisitCount)

	stored, err := env.svc.GetLink(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.VisitCount, "toggle must not clobber a concurrent visit increment")
}

func TestSetActiveConcurrentWithVisits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	link, err := env.svc.CreateLink(ctx, CreateLinkParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)

	const visits = 50
	var wg sync.WaitGroup
	wg.Add(visits + 10)
	for i := 0; i < visits; i++ {
		go func() {
			defer wg.Done()
			_, err := env.svc.RecordVisit(ctx, link.ShortCode)
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 10; i++ {
		active := i%2 == 0
		go func() {
			defer wg.Done()
			_, err := env.svc.SetActive(ctx, link.ShortCode, active)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := env.svc.GetLink(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, visits, stored.VisitCount, "every visit must survive interleaved toggles")
}

func TestSetActiveNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.SetActive(context.Background(), "nothere", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkOperations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	var ids []int64
	for i := 0; i < 3; i++ {
		link, err := env.svc.CreateLink(ctx, CreateLinkParams{
			OriginalURL: "https://example.com/page/" + uuid.NewString(),
			OwnerID:     &owner,
		})
		require.NoError(t, err)
		ids = append(ids, link.ID)
	}

	affected, err := env.svc.BulkSetActive(ctx, ids, owner, false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)

	affected, err = env.svc.BulkDelete(ctx, ids, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)
}

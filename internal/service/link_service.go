package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kirved/linkly/internal/classifier"
	"github.com/kirved/linkly/internal/filter"
	"github.com/kirved/linkly/internal/model"
	"github.com/kirved/linkly/internal/quota"
	"github.com/kirved/linkly/internal/repository"
	"github.com/kirved/linkly/internal/utils"
)

// genMaxAttempts bounds the generate-insert retry loop. Collisions in a 62^6
// keyspace are rare enough that exhausting this is an operational alarm.
const genMaxAttempts = 5

// LinkStore is the persistence surface the registry needs. Implemented by
// repository.LinkRepository and repository.MemStore.
type LinkStore interface {
	Create(ctx context.Context, link *model.Link) error
	GetByShortCode(ctx context.Context, shortCode string) (*model.Link, error)
	GetByOriginalURL(ctx context.Context, originalURL string, ownerID *uuid.UUID) (*model.Link, error)
	IncrementVisitCount(ctx context.Context, shortCode string) (*model.Link, error)
	SetActive(ctx context.Context, shortCode string, active bool) (*model.Link, error)
	Delete(ctx context.Context, shortCode string) error
	BulkSetActive(ctx context.Context, ids []int64, ownerID uuid.UUID, active bool) (int64, error)
	BulkDelete(ctx context.Context, ids []int64, ownerID uuid.UUID) (int64, error)
	CreateVisit(ctx context.Context, visit *model.Visit) error
	GetAllShortCodes(ctx context.Context) ([]string, error)
}

// LinkService is the link registry: it allocates short codes, persists link
// records, enforces the anonymous quota and applies malicious-URL flagging.
type LinkService struct {
	store LinkStore
	quota *quota.Limiter
	bloom *filter.CodeFilter
	ids   *utils.IDGenerator
	log   *zap.Logger
}

// NewLinkService creates a new link service instance
func NewLinkService(store LinkStore, quotaLimiter *quota.Limiter, bloom *filter.CodeFilter, ids *utils.IDGenerator, log *zap.Logger) *LinkService {
	return &LinkService{
		store: store,
		quota: quotaLimiter,
		bloom: bloom,
		ids:   ids,
		log:   log,
	}
}

// CreateLinkParams carries a creation request into the registry.
type CreateLinkParams struct {
	OriginalURL string
	CustomCode  string
	OwnerID     *uuid.UUID
	// Identity is the client identity used for anonymous quota accounting.
	// Ignored when OwnerID is set: authenticated creations bypass the quota.
	Identity string
}

// CreateLink validates and persists a new link.
//
// The flow: quota check (anonymous only) → URL validation → dedup or custom
// code check → classification → insert with bounded retry on short-code
// collision → quota record. A malicious classification does not reject the
// request; the link is created flagged so the redirect path can warn.
func (s *LinkService) CreateLink(ctx context.Context, p CreateLinkParams) (*model.Link, error) {
	anonymous := p.OwnerID == nil
	if anonymous && p.Identity != "" {
		allowed, err := s.quota.Allow(ctx, p.Identity)
		if err != nil {
			// The quota store being down must not take creation down with
			// it; fail open like the rest of the limiting stack.
			s.log.Warn("quota check failed, allowing request", zap.Error(err))
		} else if !allowed {
			return nil, ErrQuotaExceeded
		}
	}

	if err := validateURL(p.OriginalURL); err != nil {
		return nil, err
	}

	if p.CustomCode == "" {
		// Dedup: repeat submissions of the same destination keep their code.
		existing, err := s.store.GetByOriginalURL(ctx, p.OriginalURL, p.OwnerID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	} else {
		if err := utils.ValidateCustomCode(p.CustomCode); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCode, err)
		}
		existing, err := s.store.GetByShortCode(ctx, p.CustomCode)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrCodeTaken
		}
	}

	link := &model.Link{
		ID:          s.ids.Next(),
		OriginalURL: p.OriginalURL,
		OwnerID:     p.OwnerID,
		IsActive:    true,
	}
	if res := classifier.Classify(p.OriginalURL); res.Malicious {
		link.IsFlagged = true
		link.FlagReason = res.Reason
		s.log.Info("flagging malicious destination",
			zap.String("reason", res.Reason),
			zap.Int64("link_id", link.ID))
	}

	if err := s.insertWithCode(ctx, link, p.CustomCode); err != nil {
		return nil, err
	}

	s.bloom.Add(link.ShortCode)
	if anonymous && p.Identity != "" {
		if err := s.quota.Record(ctx, p.Identity); err != nil {
			s.log.Warn("failed to record quota usage", zap.Error(err))
		}
	}

	return link, nil
}

// insertWithCode persists the link. With a custom code a duplicate insert
// means the code was taken by a concurrent request. With generated codes the
// unique index is the real collision guard: check-then-insert can race, so a
// duplicate insert regenerates and retries up to genMaxAttempts.
func (s *LinkService) insertWithCode(ctx context.Context, link *model.Link, customCode string) error {
	if customCode != "" {
		link.ShortCode = customCode
		err := s.store.Create(ctx, link)
		if errors.Is(err, repository.ErrDuplicateCode) {
			return ErrCodeTaken
		}
		return err
	}

	for attempt := 0; attempt < genMaxAttempts; attempt++ {
		code, err := utils.GenerateShortCode(utils.DefaultCodeLength)
		if err != nil {
			return err
		}
		if s.bloom.MightContain(code) {
			// Probably taken; a fresh draw is cheaper than an insert attempt.
			continue
		}

		link.ShortCode = code
		err = s.store.Create(ctx, link)
		if errors.Is(err, repository.ErrDuplicateCode) {
			s.log.Debug("short code collision, regenerating", zap.String("code", code))
			continue
		}
		return err
	}

	s.log.Error("short code generation exhausted", zap.Int("attempts", genMaxAttempts))
	return ErrGenerationExhausted
}

// GetLink retrieves a link by short code.
func (s *LinkService) GetLink(ctx context.Context, shortCode string) (*model.Link, error) {
	link, err := s.store.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	return link, nil
}

// RecordVisit bumps the visit counter atomically in storage and returns the
// updated link.
func (s *LinkService) RecordVisit(ctx context.Context, shortCode string) (*model.Link, error) {
	link, err := s.store.IncrementVisitCount(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	return link, nil
}

// LogVisit writes the per-hit analytics row in the background, detached from
// the request so a slow insert never delays the redirect.
func (s *LinkService) LogVisit(link *model.Link, ip, userAgent string) {
	visit := &model.Visit{
		LinkID:    link.ID,
		ShortCode: link.ShortCode,
		IP:        ip,
		UserAgent: userAgent,
	}
	go func() {
		if err := s.store.CreateVisit(context.Background(), visit); err != nil {
			s.log.Warn("failed to log visit", zap.Error(err))
		}
	}()
}

// SetActive flips the active flag. Ownership is checked by the caller. The
// toggle is a single-column update in the store: a read-modify-write of the
// whole row would race against concurrent visit-count increments and lose
// them.
func (s *LinkService) SetActive(ctx context.Context, shortCode string, active bool) (*model.Link, error) {
	link, err := s.store.SetActive(ctx, shortCode, active)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	return link, nil
}

// DeleteLink removes a link. Ownership is checked by the caller.
func (s *LinkService) DeleteLink(ctx context.Context, shortCode string) error {
	if _, err := s.GetLink(ctx, shortCode); err != nil {
		return err
	}
	return s.store.Delete(ctx, shortCode)
}

// BulkSetActive flips the active flag on the owner's links among ids.
func (s *LinkService) BulkSetActive(ctx context.Context, ids []int64, ownerID uuid.UUID, active bool) (int64, error) {
	return s.store.BulkSetActive(ctx, ids, ownerID, active)
}

// BulkDelete removes the owner's links among ids.
func (s *LinkService) BulkDelete(ctx context.Context, ids []int64, ownerID uuid.UUID) (int64, error) {
	return s.store.BulkDelete(ctx, ids, ownerID)
}

// WarmCodeFilter loads every persisted short code into the bloom filter.
func (s *LinkService) WarmCodeFilter(ctx context.Context) error {
	codes, err := s.store.GetAllShortCodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load short codes: %w", err)
	}
	s.bloom.AddBatch(codes)
	s.log.Info("code filter warmed", zap.Int("codes", len(codes)))
	return nil
}

// validateURL checks that the destination is structurally a valid http(s) URL
func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: URL cannot be empty", ErrInvalidURL)
	}

	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: URL must use http or https scheme", ErrInvalidURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: URL must have a valid host", ErrInvalidURL)
	}
	return nil
}

package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirved/linkly/internal/model"
)

// MemStore is an in-memory link store with the same contract as
// LinkRepository. It backs tests and local development without MySQL.
type MemStore struct {
	mu     sync.Mutex
	byCode map[string]*model.Link
	visits []model.Visit
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{byCode: make(map[string]*model.Link)}
}

func (s *MemStore) Create(_ context.Context, link *model.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[link.ShortCode]; ok {
		return ErrDuplicateCode
	}
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now
	cp := *link
	s.byCode[link.ShortCode] = &cp
	return nil
}

func (s *MemStore) GetByShortCode(_ context.Context, shortCode string) (*model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.byCode[shortCode]
	if !ok {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

func (s *MemStore) GetByOriginalURL(_ context.Context, originalURL string, ownerID *uuid.UUID) (*model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.byCode {
		if link.OriginalURL != originalURL {
			continue
		}
		if ownerID != nil && !link.OwnedBy(*ownerID) {
			continue
		}
		cp := *link
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) IncrementVisitCount(_ context.Context, shortCode string) (*model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.byCode[shortCode]
	if !ok {
		return nil, nil
	}
	link.VisitCount++
	cp := *link
	return &cp, nil
}

func (s *MemStore) SetActive(_ context.Context, shortCode string, active bool) (*model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.byCode[shortCode]
	if !ok {
		return nil, nil
	}
	if link.IsActive != active {
		link.IsActive = active
		link.UpdatedAt = time.Now()
	}
	cp := *link
	return &cp, nil
}

func (s *MemStore) Delete(_ context.Context, shortCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byCode, shortCode)
	return nil
}

func (s *MemStore) BulkSetActive(_ context.Context, ids []int64, ownerID uuid.UUID, active bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, link := range s.byCode {
		if containsID(ids, link.ID) && link.OwnedBy(ownerID) && link.IsActive != active {
			link.IsActive = active
			link.UpdatedAt = time.Now()
			affected++
		}
	}
	return affected, nil
}

func (s *MemStore) BulkDelete(_ context.Context, ids []int64, ownerID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for code, link := range s.byCode {
		if containsID(ids, link.ID) && link.OwnedBy(ownerID) {
			delete(s.byCode, code)
			affected++
		}
	}
	return affected, nil
}

func (s *MemStore) CreateVisit(_ context.Context, visit *model.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	visit.VisitedAt = time.Now()
	s.visits = append(s.visits, *visit)
	return nil
}

func (s *MemStore) GetAllShortCodes(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.byCode))
	for code := range s.byCode {
		codes = append(codes, code)
	}
	return codes, nil
}

// Visits returns a copy of the recorded visit rows.
func (s *MemStore) Visits() []model.Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Visit, len(s.visits))
	copy(out, s.visits)
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

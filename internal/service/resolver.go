package service

import (
	"context"

	"github.com/kirved/linkly/internal/filter"
	"github.com/kirved/linkly/internal/model"
)

// ResolutionState is the terminal state of a redirect resolution.
type ResolutionState int

const (
	// StateNotFound means no link exists for the code.
	StateNotFound ResolutionState = iota
	// StateInactive means the link exists but was deactivated; distinct from
	// NotFound so clients can tell "never existed" from "was turned off".
	StateInactive
	// StateFlagged means the destination was classified malicious; the caller
	// must show a warning and get explicit confirmation before navigating.
	StateFlagged
	// StateRedirect means the link is live; the visit has been counted.
	StateRedirect
)

// Resolution is the outcome of resolving a short code.
type Resolution struct {
	State       ResolutionState
	OriginalURL string
	FlagReason  string
	Link        *model.Link
}

// Resolver turns a short code into a redirect decision.
type Resolver struct {
	links *LinkService
	bloom *filter.CodeFilter
}

// NewResolver creates a new resolver instance
func NewResolver(links *LinkService, bloom *filter.CodeFilter) *Resolver {
	return &Resolver{links: links, bloom: bloom}
}

// Resolve looks up a code and applies the active/flagged policy. Only the
// plain redirect outcome counts a visit; inactive and flagged lookups leave
// the counter untouched (for flagged links the interstitial decides whether
// an explicit proceed counts, via LinkService.RecordVisit).
func (r *Resolver) Resolve(ctx context.Context, shortCode string) (Resolution, error) {
	// Bloom filter says "definitely absent" for most junk codes, sparing the
	// database a lookup.
	if !r.bloom.MightContain(shortCode) {
		return Resolution{State: StateNotFound}, nil
	}

	link, err := r.links.store.GetByShortCode(ctx, shortCode)
	if err != nil {
		return Resolution{}, err
	}
	if link == nil {
		return Resolution{State: StateNotFound}, nil
	}

	if !link.IsActive {
		return Resolution{State: StateInactive, Link: link}, nil
	}

	if link.IsFlagged {
		return Resolution{
			State:       StateFlagged,
			OriginalURL: link.OriginalURL,
			FlagReason:  link.FlagReason,
			Link:        link,
		}, nil
	}

	updated, err := r.links.RecordVisit(ctx, shortCode)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		State:       StateRedirect,
		OriginalURL: updated.OriginalURL,
		Link:        updated,
	}, nil
}

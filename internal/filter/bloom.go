// Package filter keeps a bloom filter over every short code ever persisted,
// letting the redirect path reject unknown codes before touching storage.
package filter

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// CodeFilter wraps the bloom filter with thread-safety
type CodeFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewCodeFilter creates a filter sized for the expected number of codes and
// the acceptable false positive rate.
func NewCodeFilter(capacity uint, fpRate float64) *CodeFilter {
	return &CodeFilter{
		filter: bloom.NewWithEstimates(capacity, fpRate),
	}
}

// Add records a short code in the filter.
func (f *CodeFilter) Add(shortCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(shortCode)
}

// MightContain reports whether a short code might exist. False means the code
// definitely does not exist; true may be a false positive.
func (f *CodeFilter) MightContain(shortCode string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(shortCode)
}

// AddBatch records multiple short codes, used when warming the filter on boot.
func (f *CodeFilter) AddBatch(shortCodes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range shortCodes {
		f.filter.AddString(code)
	}
}

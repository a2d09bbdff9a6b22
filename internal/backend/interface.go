package backend

import (
	"context"
	"time"

	"bilancio/internal/ledger"
)

// Backend bundles the ledger collaborators: the posting query side and the
// transaction write side of one external book.
type Backend interface {
	ledger.PostingSource
	ledger.TransactionWriter
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance, its rate provider and an
// optional cleanup function
type BackendResult struct {
	Backend Backend
	Rates   ledger.RateProvider
	Cleanup CleanupFunc
}

// Factory creates ledger backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// Rate caching
	RateCacheSize int
	RateCacheTTL  time.Duration
}

// BackendType represents the type of ledger backend
type BackendType string

const (
	// MemoryBackend keeps the book in process. It is the only backend until
	// the hledger-web client lands.
	MemoryBackend BackendType = "memory"
)

// IsValid checks if the backend type is supported
func (t BackendType) IsValid() bool {
	return t == MemoryBackend
}

// String returns the string representation of the backend type
func (t BackendType) String() string {
	return string(t)
}

package backend

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(_ context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	book := memory.New()

	var rates ledger.RateProvider = memory.NewFixedRates(nil)
	if config.RateCacheSize > 0 {
		rates = ledger.NewCachingRateProvider(rates, config.RateCacheSize, config.RateCacheTTL)
	}

	f.logger.Info("Initialized memory ledger backend",
		"rate_cache_size", config.RateCacheSize)

	return &BackendResult{
		Backend: book,
		Rates:   rates,
		Cleanup: nil, // nothing to release for the in-process book
	}, nil
}

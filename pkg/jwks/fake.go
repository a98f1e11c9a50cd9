package jwks

import (
	"context"
	"sync"

	"github.com/jetstack/jwks-resolver/api"
)

// Compile-time check that FakeFetcher implements Fetcher
var _ Fetcher = (*FakeFetcher)(nil)

// FakeFetcher is a fake implementation of the Fetcher for testing.
// It can be configured to return specific keys or errors for testing different scenarios.
type FakeFetcher struct {
	mu sync.Mutex

	// Keys are the key records returned by Fetch.
	Keys []api.KeyRecord

	// Err is the error that will be returned by Fetch.
	// If both Keys and Err are set, Err takes precedence.
	Err error

	fetchCalls int
}

// NewFakeFetcher creates a new fake fetcher that returns the specified keys.
func NewFakeFetcher(keys ...api.KeyRecord) *FakeFetcher {
	return &FakeFetcher{Keys: keys}
}

// NewFakeFetcherWithError creates a new fake fetcher that returns the specified error.
func NewFakeFetcherWithError(err error) *FakeFetcher {
	return &FakeFetcher{Err: err}
}

// Fetch implements the Fetcher interface for testing.
func (f *FakeFetcher) Fetch(ctx context.Context) ([]api.KeyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++

	// Check if context is canceled
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if f.Err != nil {
		return nil, f.Err
	}

	return append([]api.KeyRecord(nil), f.Keys...), nil
}

// SetKeys replaces the keys returned by subsequent calls and clears Err.
func (f *FakeFetcher) SetKeys(keys ...api.KeyRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = keys
	f.Err = nil
}

// SetError makes subsequent calls fail with err.
func (f *FakeFetcher) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// FetchCalls returns how many times Fetch was called.
func (f *FakeFetcher) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

package accountloader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAccounts struct {
	mu      sync.Mutex
	calls   int
	known   map[string]bool
	failErr error
}

func (c *countingAccounts) ExistingCodes(_ context.Context, codes []string) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failErr != nil {
		return nil, c.failErr
	}
	found := make(map[string]bool)
	for _, code := range codes {
		if c.known[code] {
			found[code] = true
		}
	}
	return found, nil
}

func TestAccountLoader_BatchesConcurrentLookups(t *testing.T) {
	repo := &countingAccounts{known: map[string]bool{"4000": true, "6300": true}}
	loader := NewAccountLoader(repo, 20*time.Millisecond)

	codes := []string{"4000", "6300", "9999", "4000"}
	results := make([]bool, len(codes))
	var wg sync.WaitGroup
	for i, code := range codes {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			ok, err := loader.Exists(context.Background(), code)
			assert.NoError(t, err)
			results[i] = ok
		}(i, code)
	}
	wg.Wait()

	assert.Equal(t, []bool{true, true, false, true}, results)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, 1, repo.calls)
}

func TestAccountLoader_PropagatesLookupFailure(t *testing.T) {
	repo := &countingAccounts{failErr: errors.New("chart unavailable")}
	loader := NewAccountLoader(repo, time.Millisecond)

	_, err := loader.Exists(context.Background(), "4000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chart unavailable")
}

package accountloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/ledgerflow/internal/repository"

	"github.com/graph-gophers/dataloader"
)

// AccountLoader batches chart-of-accounts existence checks issued by concurrent row validators.
// One loader lives for one import run, so its cache never outlives the run.
type AccountLoader struct {
	Loader *dataloader.Loader
}

func NewAccountLoader(repo repository.AccountRepository, wait time.Duration) *AccountLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		codes := keys.Keys()

		found, err := repo.ExistingCodes(ctx, codes)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, code := range codes {
			results[i] = &dataloader.Result{Data: found[code]}
		}
		return results
	}

	if wait <= 0 {
		wait = 2 * time.Millisecond
	}
	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(wait))

	return &AccountLoader{Loader: loader}
}

// Exists reports whether code is an active account.
func (l *AccountLoader) Exists(ctx context.Context, code string) (bool, error) {
	value, err := l.Loader.Load(ctx, dataloader.StringKey(code))()
	if err != nil {
		return false, err
	}
	exists, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected account lookup result %T", value)
	}
	return exists, nil
}

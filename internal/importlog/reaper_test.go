package importlog

import (
	"context"
	"testing"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/repository/memory"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaper_SweepsEveryTenant(t *testing.T) {
	ctx := context.Background()
	provider := memory.NewProvider()
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	manager := NewManager(provider, WithClock(func() time.Time { return clock }))

	globex := tenant.Tenant{ID: "globex"}
	var ids []uuid.UUID
	for _, tn := range []tenant.Tenant{acme, globex} {
		log, err := manager.Open(ctx, tn, uuid.New(), "stuck.csv")
		require.NoError(t, err)
		_, err = manager.Begin(ctx, tn, log.ID)
		require.NoError(t, err)
		ids = append(ids, log.ID)
	}

	reaper := NewReaper(manager, provider, 30*time.Minute, time.Minute)
	assert.Zero(t, reaper.Sweep(ctx))

	clock = clock.Add(time.Hour)
	assert.Equal(t, 2, reaper.Sweep(ctx))
	assert.Zero(t, reaper.Sweep(ctx), "settled imports are not reaped twice")

	log, err := manager.Get(ctx, globex, ids[1])
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusFailed, log.Status)
}

func TestReaper_RunStopsWithContext(t *testing.T) {
	reaper := NewReaper(NewManager(memory.NewProvider()), memory.NewProvider(), time.Minute, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

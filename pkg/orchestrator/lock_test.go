package orchestrator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/orchestrator"
)

func TestLockRegistry_ExclusiveAcquisition(t *testing.T) {
	r := orchestrator.NewLockRegistry()
	require.NoError(t, r.Acquire("exp-1", "holder-a", time.Hour, 0))
	err := r.Acquire("exp-1", "holder-b", time.Hour, 0)
	assert.True(t, edisonerr.Is(err, edisonerr.LockHeld))
}

func TestLockRegistry_ReleaseIsIdempotent(t *testing.T) {
	r := orchestrator.NewLockRegistry()
	require.NoError(t, r.Acquire("exp-1", "holder-a", time.Hour, 0))
	r.Release("exp-1", "holder-a")
	r.Release("exp-1", "holder-a") // no panic, no error path to check
	assert.False(t, r.HolderAlive("exp-1"))
}

func TestLockRegistry_ReacquisitionAfterTTLExpiry(t *testing.T) {
	r := orchestrator.NewLockRegistry()
	require.NoError(t, r.Acquire("exp-1", "holder-a", time.Millisecond, 0))
	time.Sleep(5 * time.Millisecond)
	err := r.Acquire("exp-1", "holder-b", time.Hour, 0)
	assert.NoError(t, err)
}

func TestLockRegistry_ReacquisitionAfterHeartbeatLapse(t *testing.T) {
	r := orchestrator.NewLockRegistry()
	require.NoError(t, r.Acquire("exp-1", "holder-a", time.Hour, 2*time.Millisecond))
	time.Sleep(10 * time.Millisecond) // > 2x heartbeat interval, holder presumed dead
	err := r.Acquire("exp-1", "holder-b", time.Hour, 0)
	assert.NoError(t, err)
}

func TestLockRegistry_HeartbeatKeepsHolderAlive(t *testing.T) {
	r := orchestrator.NewLockRegistry()
	require.NoError(t, r.Acquire("exp-1", "holder-a", time.Hour, 2*time.Millisecond))
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.Heartbeat("exp-1", "holder-a")
			}
		}
	}()
	time.Sleep(10 * time.Millisecond)
	close(stop)
	err := r.Acquire("exp-1", "holder-b", time.Hour, 0)
	assert.True(t, edisonerr.Is(err, edisonerr.LockHeld))
}

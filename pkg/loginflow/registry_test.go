package loginflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-hris/pkg/lockout"
)

func TestRegistryExpiresIdleFlows(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	reg := NewRegistry(time.Minute)
	reg.now = func() time.Time { return now }

	active := f.newFlow(Client{Fingerprint: "fp-a"})
	idle := f.newFlow(Client{Fingerprint: "fp-b"})
	reg.Add(active)
	reg.Add(idle)
	require.Equal(t, 2, reg.Len())

	now = now.Add(45 * time.Second)
	got, ok := reg.Get(active.ID())
	require.True(t, ok)
	assert.Same(t, active, got)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, reg.Sweep())
	_, ok = reg.Get(idle.ID())
	assert.False(t, ok)
	_, ok = reg.Get(active.ID())
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = reg.Get(active.ID())
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryRemove(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistry(0)
	flow := f.newFlow(Client{Fingerprint: "fp-a"})
	reg.Add(flow)

	reg.Remove(flow.ID())
	_, ok := reg.Get(flow.ID())
	assert.False(t, ok)
}

func TestRegistryRunStopsWithContext(t *testing.T) {
	reg := NewRegistry(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistryCapsFlowLifetime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	reg := NewRegistry(15*time.Minute, WithMaxLifetime(time.Hour))
	reg.now = func() time.Time { return now }

	flow, _ := f.flowAtPinVerify(t, Client{Fingerprint: testFingerprint})
	reg.Add(flow)
	for _, candidate := range []string{"000001", "000002"} {
		_, err := flow.SubmitPin(ctx, candidate)
		require.NoError(t, err)
	}
	attempts, err := f.service.deps.Attempts.Count(ctx, "flow:"+flow.ID())
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	// polled often enough to never go idle
	for i := 0; i < 6; i++ {
		now = now.Add(10 * time.Minute)
		_, ok := reg.Get(flow.ID())
		require.True(t, ok)
	}

	now = now.Add(10 * time.Minute)
	_, ok := reg.Get(flow.ID())
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())

	attempts, err = f.service.deps.Attempts.Count(ctx, "flow:"+flow.ID())
	require.NoError(t, err)
	assert.Zero(t, attempts)
}

func TestRegistryRemoveReleasesAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := NewRegistry(0)

	flow, _ := f.flowAtPinVerify(t, Client{Fingerprint: testFingerprint})
	reg.Add(flow)
	_, err := flow.SubmitPin(ctx, "000001")
	require.NoError(t, err)

	reg.Remove(flow.ID())
	attempts, err := f.service.deps.Attempts.Count(ctx, "flow:"+flow.ID())
	require.NoError(t, err)
	assert.Zero(t, attempts)
}

func TestAttemptCounterOutlivesFlow(t *testing.T) {
	assert.Greater(t, lockout.DefaultWindow, DefaultMaxLifetime)
	assert.Greater(t, DefaultMaxLifetime, DefaultIdleTimeout)
}

package safeguard

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

func TestBreakerRegistryExecute(t *testing.T) {
	reg := NewBreakerRegistry()

	result, err := reg.Execute(domain.SourcePanelApp, func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.False(t, reg.IsOpen(domain.SourcePanelApp))
}

func TestBreakerRegistryTripsOnRepeatedFailure(t *testing.T) {
	reg := NewBreakerRegistry()

	for i := 0; i < 5; i++ {
		_, _ = reg.Execute(domain.SourceClinGen, func() (any, error) {
			return nil, assert.AnError
		})
	}

	assert.True(t, reg.IsOpen(domain.SourceClinGen))
}

func TestRateLimiterRegistryWaitRespectsContextCancellation(t *testing.T) {
	reg := NewRateLimiterRegistry(map[domain.SourceName]float64{
		domain.SourceHPO: 0.001,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, reg.Wait(context.Background(), domain.SourceHPO))
	err := reg.Wait(ctx, domain.SourceHPO)
	assert.Error(t, err)
}

func TestRateLimiterRegistryUnknownSourceGetsDefault(t *testing.T) {
	reg := NewRateLimiterRegistry(nil)
	err := reg.Wait(context.Background(), domain.SourceName("unregistered"))
	assert.NoError(t, err)
}

func TestMemoryGuardReadsMeminfo(t *testing.T) {
	path := t.TempDir() + "/meminfo"
	content := "MemTotal:       16000000 kB\nMemFree:         1000000 kB\nMemAvailable:    1600000 kB\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	guard := NewMemoryGuard(0.85)
	guard.meminfoPath = path

	fraction, exceeded := guard.Exceeded()
	assert.InDelta(t, 0.9, fraction, 0.001)
	assert.True(t, exceeded)
}

func TestMemoryGuardBelowThresholdDoesNotTrip(t *testing.T) {
	path := t.TempDir() + "/meminfo"
	content := "MemTotal:       16000000 kB\nMemAvailable:   12000000 kB\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	guard := NewMemoryGuard(0.85)
	guard.meminfoPath = path

	_, exceeded := guard.Exceeded()
	assert.False(t, exceeded)
}

func TestMemoryGuardFailsOpenWithoutMeminfo(t *testing.T) {
	guard := NewMemoryGuard(0.85)
	guard.meminfoPath = "/no/such/path"

	fraction, exceeded := guard.Exceeded()
	assert.Zero(t, fraction)
	assert.False(t, exceeded)
}

func TestWithFailsafeAppliesDefault(t *testing.T) {
	ctx, cancel := WithFailsafe(context.Background(), domain.TimeoutConfig{})
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(120*time.Second), deadline, 2*time.Second)
}

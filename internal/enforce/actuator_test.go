package enforce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/events"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/goodtune/tvwarden/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shieldPackage   = "com.tvwarden.shield"
	shieldComponent = "com.tvwarden.shield/.MainActivity"
)

type fakeDevice struct {
	mu         sync.Mutex
	owner      bool
	ownerErr   error
	suspendErr error
	frontErr   error

	suspended map[string]bool
	lockTask  []string
	fronts    []string
}

func newFakeDevice(owner bool) *fakeDevice {
	return &fakeDevice{owner: owner, suspended: make(map[string]bool)}
}

func (f *fakeDevice) IsDeviceOwner(context.Context) (bool, error) {
	return f.owner, f.ownerErr
}

func (f *fakeDevice) SetPackagesSuspended(_ context.Context, pkgs []string, suspended bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.suspendErr != nil {
		return f.suspendErr
	}
	for _, p := range pkgs {
		f.suspended[p] = suspended
	}
	return nil
}

func (f *fakeDevice) SetLockTaskPackages(_ context.Context, pkgs []string) error {
	f.lockTask = pkgs
	return nil
}

func (f *fakeDevice) BringToFront(_ context.Context, component string) error {
	f.fronts = append(f.fronts, component)
	return f.frontErr
}

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) Emit(_ context.Context, ev events.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func newActuator(t *testing.T, dev *fakeDevice, sink events.Sink) (*Actuator, *memory.Store) {
	t.Helper()
	store := memory.New()
	clk := &clock.TestClock{CurrentTime: time.Date(2024, 6, 5, 15, 0, 0, 0, time.UTC)}
	a := New(dev, dev, store.Apps(), sink, Supervisor{Package: shieldPackage, Component: shieldComponent}, clk, zerolog.Nop())
	return a, store
}

func TestApplyIgnoreAndRecordUsageHaveNoEffect(t *testing.T) {
	dev := newFakeDevice(true)
	sink := &recordingSink{}
	a, _ := newActuator(t, dev, sink)

	require.NoError(t, a.Apply(context.Background(), policy.Ignore{}))
	require.NoError(t, a.Apply(context.Background(), policy.RecordUsage{Package: "p", IncrementMinutes: 1, NewTotalMinutes: 1}))
	assert.Empty(t, dev.fronts)
	assert.Empty(t, dev.suspended)
	assert.Empty(t, sink.events)
}

func TestApplyBlockNotAllowed(t *testing.T) {
	dev := newFakeDevice(false)
	sink := &recordingSink{}
	a, _ := newActuator(t, dev, sink)

	for i := 0; i < 3; i++ {
		require.NoError(t, a.Apply(context.Background(), policy.BlockNotAllowed{Package: "com.bad"}))
	}
	assert.Equal(t, []string{shieldComponent, shieldComponent, shieldComponent}, dev.fronts)
	assert.Empty(t, dev.suspended)
	assert.Empty(t, sink.events)
}

func TestApplyEnforceTimeLimit(t *testing.T) {
	dev := newFakeDevice(true)
	sink := &recordingSink{}
	a, _ := newActuator(t, dev, sink)

	err := a.Apply(context.Background(), policy.EnforceTimeLimit{
		Package: "com.netflix.ninja", DisplayName: "Netflix", MinutesUsed: 60, DailyLimit: 60,
	})
	require.NoError(t, err)
	assert.True(t, dev.suspended["com.netflix.ninja"])
	assert.Equal(t, []string{shieldComponent}, dev.fronts)
	require.Len(t, sink.events, 1)
	assert.Equal(t, events.NameTimeUp, sink.events[0].Name)
	assert.Equal(t, "com.netflix.ninja", sink.events[0].Package)
	assert.Equal(t, "Netflix", sink.events[0].DisplayName)
}

func TestApplyEnforceTimeLimitWithoutOwnership(t *testing.T) {
	tests := []struct {
		name string
		dev  *fakeDevice
	}{
		{"not owner", newFakeDevice(false)},
		{"owner check fails", &fakeDevice{owner: true, ownerErr: errors.New("dpm unavailable"), suspended: map[string]bool{}}},
		{"suspend fails", &fakeDevice{owner: true, suspendErr: errors.New("denied"), suspended: map[string]bool{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			a, _ := newActuator(t, tt.dev, sink)

			err := a.Apply(context.Background(), policy.EnforceTimeLimit{Package: "com.x", DisplayName: "X"})
			require.NoError(t, err)
			assert.False(t, tt.dev.suspended["com.x"])
			assert.Equal(t, []string{shieldComponent}, tt.dev.fronts)
			assert.Len(t, sink.events, 1)
		})
	}
}

func TestApplyReportsForegroundFailure(t *testing.T) {
	dev := newFakeDevice(true)
	dev.frontErr = errors.New("activity manager unavailable")
	a, _ := newActuator(t, dev, nil)

	err := a.Apply(context.Background(), policy.EnforceTimeLimit{Package: "com.x"})
	assert.ErrorContains(t, err, "activity manager unavailable")
	assert.True(t, dev.suspended["com.x"])
}

type unknownAction struct{ policy.Ignore }

func TestApplyUnknownAction(t *testing.T) {
	a, _ := newActuator(t, newFakeDevice(true), nil)
	assert.Error(t, a.Apply(context.Background(), unknownAction{}))
}

func TestUnsuspendAll(t *testing.T) {
	dev := newFakeDevice(true)
	a, store := newActuator(t, dev, nil)
	ctx := context.Background()

	require.NoError(t, store.Apps().Upsert(ctx, storage.App{PackageName: "a", Allowed: true}))
	require.NoError(t, store.Apps().Upsert(ctx, storage.App{PackageName: "b", Allowed: false}))
	dev.suspended["a"] = true
	dev.suspended["b"] = true

	a.UnsuspendAll(ctx)
	assert.False(t, dev.suspended["a"])
	assert.True(t, dev.suspended["b"])

	a.Suspend(ctx, "a")
	assert.True(t, dev.suspended["a"])
	a.Unsuspend(ctx, "a")
	assert.False(t, dev.suspended["a"])
}

func TestAllowLockTaskPackages(t *testing.T) {
	dev := newFakeDevice(true)
	a, store := newActuator(t, dev, nil)
	ctx := context.Background()

	a.AllowLockTaskPackages(ctx, []string{"b", "a", shieldPackage, "b", ""})
	assert.Equal(t, []string{shieldPackage, "a", "b"}, dev.lockTask)

	require.NoError(t, store.Apps().Upsert(ctx, storage.App{PackageName: "c", Allowed: true}))
	require.NoError(t, store.Apps().Upsert(ctx, storage.App{PackageName: "d"}))
	a.SyncLockTaskAllowlist(ctx)
	assert.Equal(t, []string{shieldPackage, "c"}, dev.lockTask)

	dev.owner = false
	a.AllowLockTaskPackages(ctx, []string{"z"})
	assert.Equal(t, []string{shieldPackage, "c"}, dev.lockTask)
}

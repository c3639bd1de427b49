package control

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/tvwarden/internal/apps"
	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/detect"
	"github.com/goodtune/tvwarden/internal/monitor"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/goodtune/tvwarden/internal/storage/bolt"
	"github.com/goodtune/tvwarden/internal/storage/memory"
	"github.com/goodtune/tvwarden/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shield  = "com.tvwarden.shield"
	netflix = "com.netflix.ninja"
)

type fakeLauncher struct {
	mu      sync.Mutex
	started []string
}

func (l *fakeLauncher) ResolveEntryPoint(_ context.Context, pkg string, entry policy.EntryPoint) (string, error) {
	if entry == policy.EntryLeanback {
		return pkg + "/.TvActivity", nil
	}
	return "", policy.ErrNoEntryPoint
}

func (l *fakeLauncher) StartComponent(_ context.Context, component string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, component)
	return nil
}

func (l *fakeLauncher) startedComponents() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.started...)
}

type fakeDetector struct {
	pkg string
}

func (d fakeDetector) Detect(context.Context) (detect.Detection, bool) {
	if d.pkg == "" {
		return detect.Detection{}, false
	}
	return detect.Detection{Package: d.pkg, Method: detect.MethodRunningTask}, true
}

type nopActuator struct{}

func (nopActuator) Apply(context.Context, policy.MonitorAction) error { return nil }

type countingSyncer struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSyncer) SyncLockTaskAllowlist(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

func (s *countingSyncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type agentFixture struct {
	store    storage.Store
	ledger   *usage.Ledger
	engine   *policy.Engine
	launcher *fakeLauncher
	syncer   *countingSyncer
	local    *Local
}

func newAgentFixture(t *testing.T, store storage.Store, foreground string) *agentFixture {
	t.Helper()
	logger := zerolog.Nop()
	clk := clock.RealClock{}
	ledger := usage.NewLedger(store.Usage(), clk, logger)
	launcher := &fakeLauncher{}
	syncer := &countingSyncer{}
	return &agentFixture{
		store:    store,
		ledger:   ledger,
		engine:   policy.NewEngine(store.Apps(), store.Rules(), ledger, logger),
		launcher: launcher,
		syncer:   syncer,
		local: NewLocal(LocalConfig{
			Store:        store,
			Ledger:       ledger,
			Gate:         policy.NewGate(store.Apps(), store.Rules(), ledger, launcher, clk, logger),
			Apps:         apps.NewManager(store.Apps(), store.Rules(), ledger, nil, clk, logger),
			Detector:     fakeDetector{pkg: foreground},
			Allowlist:    syncer,
			OwnPackage:   shield,
			PollInterval: time.Minute,
		}, logger),
	}
}

func (f *agentFixture) client(t *testing.T) *Client {
	t.Helper()
	ts := httptest.NewServer(NewServer(f.local, zerolog.Nop()).Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, ts.Client())
}

func TestLaunchWhileMonitorRuns(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "tvwarden.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := newAgentFixture(t, store, netflix)
	ctx := context.Background()
	require.NoError(t, store.Apps().Upsert(ctx, storage.App{PackageName: netflix, DisplayName: "Netflix", Installed: true, Allowed: true}))
	require.NoError(t, store.Rules().Upsert(ctx, storage.TimeLimit{PackageName: netflix, DailyLimitMinutes: storage.Minutes(120)}))

	loop := monitor.New(monitor.Config{OwnPackage: shield, Interval: time.Minute}, fakeDetector{pkg: netflix}, f.engine, nopActuator{}, zerolog.Nop())
	require.True(t, loop.Start(ctx))
	t.Cleanup(loop.Stop)

	require.Eventually(t, func() bool {
		used, err := f.ledger.TodayUsage(ctx, netflix)
		return err == nil && used > 0
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, monitor.Running, loop.State())

	client := f.client(t)

	result, err := client.RequestLaunch(ctx, netflix)
	require.NoError(t, err)
	assert.Equal(t, policy.Success{Package: netflix, Component: netflix + "/.TvActivity"}, result)
	assert.Equal(t, []string{netflix + "/.TvActivity"}, f.launcher.startedComponents())

	app, err := client.SetAllowed(ctx, "com.google.android.youtube.tv", "", true)
	require.NoError(t, err)
	assert.True(t, app.Allowed)

	require.NoError(t, client.SetLimit(ctx, storage.TimeLimit{PackageName: netflix, DailyLimitMinutes: storage.Minutes(0)}))
	result, err = client.RequestLaunch(ctx, netflix)
	require.NoError(t, err)
	assert.Equal(t, policy.TimeLimitReached{Package: netflix, DisplayName: "Netflix"}, result)

	statuses, err := client.Apps(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, monitor.Running, loop.State())
}

type stubService struct {
	Service
	launch policy.LaunchResult
}

func (s stubService) RequestLaunch(context.Context, string) (policy.LaunchResult, error) {
	return s.launch, nil
}

func TestLaunchResultsCrossTheWire(t *testing.T) {
	results := []policy.LaunchResult{
		policy.Success{Package: netflix, Component: netflix + "/.TvActivity"},
		policy.AppNotInstalled{Package: netflix},
		policy.NotAllowed{Package: netflix, Reason: policy.ReasonDayNotAllowed},
		policy.OutsideSchedule{Package: netflix, Start: "16:00", End: "19:30"},
		policy.TimeLimitReached{Package: netflix, DisplayName: "Netflix"},
	}

	for _, want := range results {
		t.Run(want.Kind(), func(t *testing.T) {
			ts := httptest.NewServer(NewServer(stubService{launch: want}, zerolog.Nop()).Handler())
			defer ts.Close()

			got, err := NewClient(ts.URL, ts.Client()).RequestLaunch(context.Background(), netflix)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestAllowResyncsKioskAllowlist(t *testing.T) {
	f := newAgentFixture(t, memory.New(), "")
	client := f.client(t)
	ctx := context.Background()

	app, err := client.SetAllowed(ctx, netflix, "", true)
	require.NoError(t, err)
	assert.Equal(t, "Netflix", app.DisplayName)
	assert.Equal(t, 1, f.syncer.count())

	status, err := client.App(ctx, netflix)
	require.NoError(t, err)
	require.NotNil(t, status.DailyLimit)
	assert.Equal(t, apps.DefaultDailyLimitMinutes, *status.DailyLimit)

	_, err = client.SetAllowed(ctx, netflix, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.syncer.count())
}

func TestSetLimitRejectsInvalidRule(t *testing.T) {
	f := newAgentFixture(t, memory.New(), "")
	client := f.client(t)

	err := client.SetLimit(context.Background(), storage.TimeLimit{PackageName: netflix, AllowedStartTime: "25:00"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time of day")
	assert.False(t, errors.Is(err, storage.ErrNotFound))
}

func TestUnknownAppIsNotFound(t *testing.T) {
	f := newAgentFixture(t, memory.New(), "")
	client := f.client(t)

	_, err := client.App(context.Background(), "com.unknown.app")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestPreviewMonitorDoesNotRecordUsage(t *testing.T) {
	f := newAgentFixture(t, memory.New(), netflix)
	ctx := context.Background()
	require.NoError(t, f.store.Apps().Upsert(ctx, storage.App{PackageName: netflix, DisplayName: "Netflix", Installed: true, Allowed: true}))
	_, err := f.ledger.RecordUsage(ctx, netflix, 5)
	require.NoError(t, err)

	preview, err := f.client(t).PreviewMonitor(ctx)
	require.NoError(t, err)
	assert.True(t, preview.Detected)
	assert.Equal(t, detect.Detection{Package: netflix, Method: detect.MethodRunningTask}, preview.Detection)
	assert.Equal(t, policy.RecordUsage{Package: netflix, DisplayName: "Netflix", IncrementMinutes: 1, NewTotalMinutes: 6}, preview.Action)

	used, err := f.ledger.TodayUsage(ctx, netflix)
	require.NoError(t, err)
	assert.Equal(t, 5, used)
}

func TestPreviewMonitorNothingDetected(t *testing.T) {
	f := newAgentFixture(t, memory.New(), "")

	preview, err := f.client(t).PreviewMonitor(context.Background())
	require.NoError(t, err)
	assert.False(t, preview.Detected)
	assert.Nil(t, preview.Action)
}

func TestCheckLaunchAtAnotherTime(t *testing.T) {
	f := newAgentFixture(t, memory.New(), "")
	ctx := context.Background()
	require.NoError(t, f.store.Apps().Upsert(ctx, storage.App{PackageName: netflix, DisplayName: "Netflix", Installed: true, Allowed: true}))
	require.NoError(t, f.store.Rules().Upsert(ctx, storage.TimeLimit{PackageName: netflix, AllowedStartTime: "16:00", AllowedEndTime: "19:30"}))

	now := time.Now()
	morning := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, time.Local)
	evening := time.Date(now.Year(), now.Month(), now.Day(), 17, 0, 0, 0, time.Local)
	client := f.client(t)

	result, err := client.CheckLaunch(ctx, netflix, morning)
	require.NoError(t, err)
	assert.Equal(t, policy.OutsideSchedule{Package: netflix, Start: "16:00", End: "19:30"}, result)

	result, err = client.CheckLaunch(ctx, netflix, evening)
	require.NoError(t, err)
	assert.IsType(t, policy.Success{}, result)
	assert.Empty(t, f.launcher.startedComponents())
}

func TestTodayUsageReport(t *testing.T) {
	f := newAgentFixture(t, memory.New(), "")
	ctx := context.Background()
	_, err := f.ledger.RecordUsage(ctx, netflix, 7)
	require.NoError(t, err)

	report, err := f.client(t).TodayUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.ledger.Today(), report.Date)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, 7, report.Entries[0].Minutes)
}

func TestListenAndDial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.sock")
	f := newAgentFixture(t, memory.New(), "")

	ln, err := Listen(path)
	require.NoError(t, err)

	srv := NewServer(f.local, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	ctx := context.Background()
	client, err := Dial(ctx, path)
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx))

	_, err = Listen(path)
	assert.ErrorContains(t, err, "already in use")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	require.NoError(t, <-done)

	_, err = Dial(ctx, path)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestDialWithoutServer(t *testing.T) {
	_, err := Dial(context.Background(), filepath.Join(t.TempDir(), "missing.sock"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

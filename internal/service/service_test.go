package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-price-alerts/internal/config"
	"token-price-alerts/internal/fetcher"
	"token-price-alerts/internal/metrics"
	"token-price-alerts/internal/storage"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return r.err
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	copy(out, r.sent)
	return out
}

type failingStore struct {
	*storage.MemoryStore
	saveErr error
	loadErr error
	loaded  storage.PriceRecord
}

func (f *failingStore) Load(ctx context.Context) (storage.PriceRecord, error) {
	if f.loadErr != nil {
		return f.loaded, f.loadErr
	}
	return f.MemoryStore.Load(ctx)
}

func (f *failingStore) Save(ctx context.Context, record storage.PriceRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, record)
}

func testConfig(assets ...string) *config.Config {
	return &config.Config{
		Watch: config.WatchConfig{Assets: assets},
		Scheduler: config.SchedulerConfig{
			AlertInterval:  time.Minute,
			DigestInterval: time.Hour,
		},
		Alerting: config.AlertingConfig{
			Enabled: true,
			Prelude: config.PreludeConfig{Text: "🚨"},
		},
		Metrics: config.MetricsConfig{Namespace: "test"},
	}
}

func quote(asset, price string) fetcher.Quote {
	return fetcher.Quote{
		Asset:  asset,
		Price:  decimal.RequireFromString(price),
		Venue:  "raydium",
		Symbol: asset + "/USDC",
	}
}

type harness struct {
	svc      *Service
	quotes   *fetcher.Static
	store    *storage.MemoryStore
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, cfg *config.Config, store storage.StateStore, initial ...fetcher.Quote) *harness {
	t.Helper()
	h := &harness{
		quotes:   fetcher.NewStatic(initial...),
		notifier: &recordingNotifier{},
		metrics:  metrics.New(prometheus.NewRegistry(), "test"),
	}
	if store == nil {
		h.store = storage.NewMemoryStore()
		store = h.store
	}
	h.svc = New(cfg, h.quotes, store, h.notifier, h.metrics, zerolog.Nop())
	h.svc.Init(context.Background())
	return h
}

func TestFirstCycleRecordsPricesWithoutAlert(t *testing.T) {
	h := newHarness(t, testConfig("AAA", "BBB"), nil, quote("AAA", "1.00"), quote("BBB", "2.00"))

	report, err := h.svc.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Len(t, report.Quotes, 2)
	assert.Empty(t, report.Alerts)
	assert.True(t, report.Persisted)
	assert.Empty(t, h.notifier.messages())
	assert.Equal(t, 1, h.store.Saves())

	saved, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, saved["AAA"].Equal(decimal.RequireFromString("1.00")))
	assert.True(t, saved["BBB"].Equal(decimal.RequireFromString("2.00")))
}

func TestRiseAtThresholdSendsSingleAlert(t *testing.T) {
	h := newHarness(t, testConfig("AAA", "BBB"), nil, quote("AAA", "100"), quote("BBB", "50"))
	ctx := context.Background()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	h.quotes.Set(quote("AAA", "110"))
	h.quotes.Set(quote("BBB", "44"))
	report, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	require.Len(t, report.Alerts, 2)
	assert.True(t, report.Notified)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "*AAA/USDC rose!*")
	assert.Contains(t, msgs[0], "(up +10.00%)")
	assert.Contains(t, msgs[0], "*BBB/USDC fell!*")
	assert.Contains(t, msgs[0], "(down -12.00%)")
	assert.Less(t, strings.Index(msgs[0], "AAA/USDC"), strings.Index(msgs[0], "BBB/USDC"))

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.AlertsTotal.WithLabelValues("up")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.AlertsTotal.WithLabelValues("down")))
}

func TestRepeatedPricesAreIdempotent(t *testing.T) {
	h := newHarness(t, testConfig("AAA"), nil, quote("AAA", "100"))
	ctx := context.Background()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)
	h.quotes.Set(quote("AAA", "120"))
	_, err = h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	report, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	assert.Empty(t, report.Alerts)
	assert.Len(t, h.notifier.messages(), 1)
	assert.Equal(t, 3, h.store.Saves())
}

func TestSubThresholdDriftUpdatesBaseline(t *testing.T) {
	h := newHarness(t, testConfig("AAA"), nil, quote("AAA", "100"))
	ctx := context.Background()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	h.quotes.Set(quote("AAA", "105"))
	_, err = h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	h.quotes.Set(quote("AAA", "110"))
	report, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	assert.Empty(t, report.Alerts)
	assert.True(t, h.svc.Snapshot()["AAA"].Equal(decimal.NewFromInt(110)))
}

func TestFailedAssetIsIsolated(t *testing.T) {
	h := newHarness(t, testConfig("AAA", "BBB"), nil, quote("AAA", "100"), quote("BBB", "10"))
	ctx := context.Background()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	h.quotes = fetcher.NewStatic(quote("BBB", "20"))
	h.svc.quotes = h.quotes
	report, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "AAA", report.Failed[0].Asset)
	assert.ErrorIs(t, report.Failed[0].Err, fetcher.ErrNotFound)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "BBB", report.Alerts[0].Quote.Asset)

	snap := h.svc.Snapshot()
	assert.True(t, snap["AAA"].Equal(decimal.NewFromInt(100)))
	assert.True(t, snap["BBB"].Equal(decimal.NewFromInt(20)))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FetchFailures.WithLabelValues("not_found")))
}

func TestNotifyFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, testConfig("AAA"), nil, quote("AAA", "100"))
	ctx := context.Background()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	h.notifier.err = errors.New("telegram down")
	h.quotes.Set(quote("AAA", "200"))
	report, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	assert.False(t, report.Notified)
	assert.True(t, report.Persisted)
	assert.True(t, h.svc.Snapshot()["AAA"].Equal(decimal.NewFromInt(200)))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.NotifyFailures))

	h.notifier.err = nil
	report, err = h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, report.Alerts)
}

func TestSaveFailureStillNotifies(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore()}
	h := newHarness(t, testConfig("AAA"), store, quote("AAA", "100"))
	ctx := context.Background()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")
	h.quotes.Set(quote("AAA", "80"))
	report, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	assert.False(t, report.Persisted)
	assert.EqualError(t, report.SaveErr, "disk full")
	assert.True(t, report.Notified)
	assert.Len(t, h.notifier.messages(), 1)
	assert.True(t, h.svc.Snapshot()["AAA"].Equal(decimal.NewFromInt(80)))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.StateSaveFailures))
}

func TestPreludeMessagesPrecedeAlert(t *testing.T) {
	cfg := testConfig("AAA")
	cfg.Alerting.Prelude.Count = 2
	h := newHarness(t, cfg, nil, quote("AAA", "1"))
	ctx := context.Background()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, h.notifier.messages())

	h.quotes.Set(quote("AAA", "2"))
	_, err = h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "🚨", msgs[0])
	assert.Equal(t, "🚨", msgs[1])
	assert.Contains(t, msgs[2], "rose!")
}

func TestAlertingDisabledDropsMessages(t *testing.T) {
	cfg := testConfig("AAA")
	cfg.Alerting.Enabled = false
	h := newHarness(t, cfg, nil, quote("AAA", "1"))
	ctx := context.Background()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)
	h.quotes.Set(quote("AAA", "5"))
	report, err := h.svc.RunCycle(ctx, time.Now())
	require.NoError(t, err)

	assert.Len(t, report.Alerts, 1)
	assert.Empty(t, h.notifier.messages())
}

func TestInitResumesFromStoredState(t *testing.T) {
	seed := storage.NewPriceRecord()
	seed["AAA"] = decimal.NewFromInt(100)
	store := storage.NewMemoryStoreWith(seed)

	h := newHarness(t, testConfig("AAA"), store, quote("AAA", "111"))
	report, err := h.svc.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "up", report.Alerts[0].Result.Class.String())
}

func TestInitRecoversFromCorruptState(t *testing.T) {
	recovered := storage.NewPriceRecord()
	recovered["AAA"] = decimal.NewFromInt(100)
	store := &failingStore{
		MemoryStore: storage.NewMemoryStore(),
		loadErr:     storage.ErrCorruptState,
		loaded:      recovered,
	}

	h := newHarness(t, testConfig("AAA", "BBB"), store, quote("AAA", "100"), quote("BBB", "5"))
	assert.True(t, h.svc.Snapshot()["AAA"].Equal(decimal.NewFromInt(100)))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.StateLoadFailures))

	report, err := h.svc.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, report.Alerts)
}

func TestInitStartsColdOnLoadError(t *testing.T) {
	store := &failingStore{
		MemoryStore: storage.NewMemoryStore(),
		loadErr:     errors.New("connection refused"),
	}

	h := newHarness(t, testConfig("AAA"), store, quote("AAA", "100"))
	assert.Empty(t, h.svc.Snapshot())
}

func TestDigestNeverTouchesState(t *testing.T) {
	seed := storage.NewPriceRecord()
	seed["AAA"] = decimal.NewFromInt(1)
	store := storage.NewMemoryStoreWith(seed)

	cfg := testConfig("AAA", "So11111111111111111111111111111111111111112")
	h := newHarness(t, cfg, store, quote("AAA", "50"))

	report, err := h.svc.RunDigest(context.Background(), time.Now())
	require.NoError(t, err)

	assert.True(t, report.Notified)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 0, store.Saves())
	assert.True(t, h.svc.Snapshot().Equal(seed))

	msgs := h.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "*AAA/USDC*: $50.00 (raydium)")
	assert.Contains(t, msgs[0], "Unavailable: So1111…1112")

	cycle, err := h.svc.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, cycle.Alerts, 1)
}

func TestBusyCycleIsSkipped(t *testing.T) {
	h := newHarness(t, testConfig("AAA"), nil, quote("AAA", "1"))
	h.svc.alertBusy.Store(true)

	_, err := h.svc.RunCycle(context.Background(), time.Now())
	require.ErrorIs(t, err, ErrCycleInProgress)
	assert.Equal(t, 0, h.store.Saves())
	assert.NoError(t, h.svc.alertTick(context.Background(), time.Now()))

	h.svc.alertBusy.Store(false)
	_, err = h.svc.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, h.store.Saves())
}

func TestCancelledCycleLeavesStateAlone(t *testing.T) {
	h := newHarness(t, testConfig("AAA"), nil, quote("AAA", "1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.RunCycle(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.store.Saves())
	assert.Empty(t, h.svc.Snapshot())
}

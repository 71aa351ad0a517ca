package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-price-alerts/internal/alerting"
	"token-price-alerts/internal/asset"
	"token-price-alerts/internal/change"
	"token-price-alerts/internal/config"
	"token-price-alerts/internal/fetcher"
	"token-price-alerts/internal/metrics"
	"token-price-alerts/internal/scheduler"
	"token-price-alerts/internal/storage"
)

const (
	taskAlert  = "alert"
	taskDigest = "digest"

	saveTimeout = 10 * time.Second
)

// ErrCycleInProgress is returned when a cycle is triggered while the previous
// run of the same task has not finished.
var ErrCycleInProgress = errors.New("service: cycle already in progress")

// FetchFailure records an asset skipped for one cycle.
type FetchFailure struct {
	Asset string
	Err   error
}

// CycleReport summarises one alert cycle.
type CycleReport struct {
	CycleID   string
	Tick      time.Time
	Quotes    []fetcher.Quote
	Failed    []FetchFailure
	Results   []change.Result
	Alerts    []alerting.AlertLine
	Persisted bool
	SaveErr   error
	Notified  bool
	// Skipped is set when another process holds the advisory lock.
	Skipped bool
}

// DigestReport summarises one digest run.
type DigestReport struct {
	CycleID  string
	Tick     time.Time
	Quotes   []fetcher.Quote
	Failed   []FetchFailure
	Message  string
	Notified bool
}

// Service orchestrates fetching, evaluation, persistence, and alerting.
type Service struct {
	cfg      *config.Config
	assets   []string
	quotes   fetcher.QuoteFetcher
	store    storage.StateStore
	notifier alerting.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	locker  storage.AdvisoryLocker
	lockKey int64

	book     *priceBook
	loadOnce sync.Once
	saveMu   sync.Mutex

	alertBusy  atomic.Bool
	digestBusy atomic.Bool
}

// New constructs the monitoring service. A nil notifier drops messages; nil
// metrics records into a private registry.
func New(cfg *config.Config, quotes fetcher.QuoteFetcher, store storage.StateStore, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "service").Logger()
	if notifier == nil || !cfg.Alerting.Enabled {
		notifier = alerting.NewDiscard(logger)
	}
	if m == nil {
		m = metrics.New(nil, cfg.Metrics.Namespace)
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	assets := make([]string, len(cfg.Watch.Assets))
	copy(assets, cfg.Watch.Assets)

	return &Service{
		cfg:      cfg,
		assets:   assets,
		quotes:   quotes,
		store:    store,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		locker:   locker,
		lockKey:  cfg.Scheduler.AdvisoryLockKey,
		book:     newPriceBook(),
	}
}

// Init loads persisted state. It runs at most once; later calls are no-ops.
// A missing or unreadable store is never fatal: the service starts cold.
func (s *Service) Init(ctx context.Context) {
	s.loadOnce.Do(func() {
		record, err := s.store.Load(ctx)
		if record == nil {
			record = storage.NewPriceRecord()
		}
		switch {
		case errors.Is(err, storage.ErrCorruptState):
			s.metrics.StateLoadFailures.Inc()
			s.logger.Warn().Err(err).Int("recovered", len(record)).Msg("persisted state is corrupt; continuing with what could be recovered")
		case err != nil:
			s.metrics.StateLoadFailures.Inc()
			s.logger.Warn().Err(err).Msg("failed to load persisted state; starting cold")
			record = storage.NewPriceRecord()
		default:
			s.logger.Info().Int("assets", len(record)).Msg("persisted state loaded")
		}
		s.book.replace(record)
		s.metrics.TrackedAssets.Set(float64(len(record)))
	})
}

// Snapshot returns a copy of the in-memory price record.
func (s *Service) Snapshot() storage.PriceRecord {
	return s.book.snapshot()
}

// Run starts the alert scheduler and, when enabled, the digest scheduler, and
// blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Init(ctx)

	sc := s.cfg.Scheduler
	g, gctx := errgroup.WithContext(ctx)

	alertSched := scheduler.New(scheduler.Options{
		Name:           taskAlert,
		Interval:       sc.AlertInterval,
		AlignToStart:   sc.AlignToBucket,
		StartupDelay:   sc.StartupDelay,
		RunImmediately: sc.RunOnStart,
	}, s.logger)
	g.Go(func() error {
		return alertSched.Run(gctx, s.alertTick)
	})

	if sc.DigestEnabled {
		digestSched := scheduler.New(scheduler.Options{
			Name:           taskDigest,
			Interval:       sc.DigestInterval,
			AlignToStart:   sc.AlignToBucket,
			StartupDelay:   sc.StartupDelay,
			RunImmediately: sc.RunOnStart,
		}, s.logger)
		g.Go(func() error {
			return digestSched.Run(gctx, s.digestTick)
		})
	}

	s.logger.Info().Int("assets", len(s.assets)).
		Dur("alert_interval", sc.AlertInterval).
		Bool("digest", sc.DigestEnabled).
		Msg("schedulers started")
	return g.Wait()
}

func (s *Service) alertTick(ctx context.Context, tick time.Time) error {
	_, err := s.RunCycle(ctx, tick)
	if errors.Is(err, ErrCycleInProgress) {
		return nil
	}
	return err
}

func (s *Service) digestTick(ctx context.Context, tick time.Time) error {
	_, err := s.RunDigest(ctx, tick)
	if errors.Is(err, ErrCycleInProgress) {
		return nil
	}
	return err
}

// RunCycle performs one fetch, evaluate, persist, notify pass over every asset.
func (s *Service) RunCycle(ctx context.Context, tick time.Time) (CycleReport, error) {
	if !s.alertBusy.CompareAndSwap(false, true) {
		s.metrics.CyclesTotal.WithLabelValues(taskAlert, metrics.OutcomeSkipped).Inc()
		s.logger.Warn().Time("tick", tick).Msg("alert cycle still running; trigger skipped")
		return CycleReport{Tick: tick}, ErrCycleInProgress
	}
	defer s.alertBusy.Store(false)

	report := CycleReport{CycleID: uuid.NewString(), Tick: tick}
	logger := s.logger.With().Str("task", taskAlert).Str("cycle_id", report.CycleID).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.metrics.CyclesTotal.WithLabelValues(taskAlert, metrics.OutcomeFailed).Inc()
		return report, err
	}
	if !proceed {
		s.metrics.CyclesTotal.WithLabelValues(taskAlert, metrics.OutcomeSkipped).Inc()
		logger.Debug().Time("tick", tick).Msg("skip cycle because advisory lock held elsewhere")
		report.Skipped = true
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	s.Init(ctx)
	started := time.Now()

	report.Quotes, report.Failed = s.fetchAll(ctx, logger)
	if err := ctx.Err(); err != nil {
		s.metrics.CyclesTotal.WithLabelValues(taskAlert, metrics.OutcomeFailed).Inc()
		return report, fmt.Errorf("alert cycle interrupted: %w", err)
	}

	var snapshot storage.PriceRecord
	report.Results, report.Alerts, snapshot = s.book.apply(report.Quotes)
	for _, res := range report.Results {
		if res.InvalidPrevious {
			logger.Error().Str("asset", res.Asset).Msg("stored price was not positive; treating asset as first seen")
		}
	}

	report.SaveErr = s.persist(ctx, snapshot)
	report.Persisted = report.SaveErr == nil
	if report.SaveErr != nil {
		s.metrics.StateSaveFailures.Inc()
		logger.Error().Err(report.SaveErr).Int("assets", len(snapshot)).Msg("state persistence failed; next start may repeat alerts")
	}
	s.metrics.TrackedAssets.Set(float64(len(snapshot)))

	if len(report.Alerts) > 0 {
		for _, line := range report.Alerts {
			s.metrics.AlertsTotal.WithLabelValues(line.Result.Class.String()).Inc()
			logger.Info().Str("asset", line.Quote.Asset).
				Str("symbol", line.Quote.Symbol).
				Str("direction", line.Result.Class.String()).
				Str("percent", line.Result.Percent.StringFixed(2)).
				Msg("price alert")
		}
		report.Notified = s.notifyAlert(ctx, report.Alerts, logger)
	}

	s.metrics.CyclesTotal.WithLabelValues(taskAlert, metrics.OutcomeCompleted).Inc()
	s.metrics.CycleDuration.WithLabelValues(taskAlert).Observe(time.Since(started).Seconds())
	logger.Info().Int("fetched", len(report.Quotes)).
		Int("failed", len(report.Failed)).
		Int("alerts", len(report.Alerts)).
		Bool("persisted", report.Persisted).
		Dur("took", time.Since(started)).
		Msg("alert cycle completed")
	return report, nil
}

// RunDigest fetches every asset and sends one summary. It never reads or
// writes the price record.
func (s *Service) RunDigest(ctx context.Context, tick time.Time) (DigestReport, error) {
	if !s.digestBusy.CompareAndSwap(false, true) {
		s.metrics.CyclesTotal.WithLabelValues(taskDigest, metrics.OutcomeSkipped).Inc()
		s.logger.Warn().Time("tick", tick).Msg("digest still running; trigger skipped")
		return DigestReport{Tick: tick}, ErrCycleInProgress
	}
	defer s.digestBusy.Store(false)

	report := DigestReport{CycleID: uuid.NewString(), Tick: tick}
	logger := s.logger.With().Str("task", taskDigest).Str("cycle_id", report.CycleID).Logger()
	started := time.Now()

	report.Quotes, report.Failed = s.fetchAll(ctx, logger)
	if err := ctx.Err(); err != nil {
		s.metrics.CyclesTotal.WithLabelValues(taskDigest, metrics.OutcomeFailed).Inc()
		return report, fmt.Errorf("digest interrupted: %w", err)
	}

	unavailable := make([]string, 0, len(report.Failed))
	for _, f := range report.Failed {
		unavailable = append(unavailable, f.Asset)
	}
	report.Message = alerting.RenderDigest(report.Quotes, unavailable)

	if err := s.notifier.Send(ctx, report.Message); err != nil {
		s.metrics.NotifyFailures.Inc()
		logger.Error().Err(err).Msg("failed to dispatch digest")
	} else {
		report.Notified = true
	}

	s.metrics.CyclesTotal.WithLabelValues(taskDigest, metrics.OutcomeCompleted).Inc()
	s.metrics.CycleDuration.WithLabelValues(taskDigest).Observe(time.Since(started).Seconds())
	logger.Info().Int("fetched", len(report.Quotes)).
		Int("failed", len(report.Failed)).
		Bool("notified", report.Notified).
		Msg("digest completed")
	return report, nil
}

// fetchAll quotes every asset sequentially in configured order. It stops early
// only when ctx is cancelled.
func (s *Service) fetchAll(ctx context.Context, logger zerolog.Logger) ([]fetcher.Quote, []FetchFailure) {
	quotes := make([]fetcher.Quote, 0, len(s.assets))
	var failed []FetchFailure

	for _, id := range s.assets {
		if ctx.Err() != nil {
			break
		}
		q, err := s.quotes.FetchQuote(ctx, id)
		if err != nil {
			failed = append(failed, FetchFailure{Asset: id, Err: err})
			s.metrics.FetchFailures.WithLabelValues(failureReason(err)).Inc()
			logger.Warn().Err(err).
				Str("asset", id).
				Str("family", string(asset.Classify(id))).
				Msg("quote unavailable; asset skipped this cycle")
			continue
		}
		q.Asset = id
		quotes = append(quotes, q)
	}
	return quotes, failed
}

// persist writes snapshot once, detached from ctx cancellation so the durable
// copy does not fall behind the in-memory one.
func (s *Service) persist(ctx context.Context, snapshot storage.PriceRecord) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	return s.store.Save(saveCtx, snapshot)
}

// notifyAlert sends the optional prelude messages followed by the consolidated
// alert. Delivery failures are logged and swallowed.
func (s *Service) notifyAlert(ctx context.Context, lines []alerting.AlertLine, logger zerolog.Logger) bool {
	prelude := s.cfg.Alerting.Prelude
	for i := 0; i < prelude.Count; i++ {
		if err := s.notifier.Send(ctx, prelude.Text); err != nil {
			s.metrics.NotifyFailures.Inc()
			logger.Error().Err(err).Int("index", i).Msg("failed to dispatch prelude message")
		}
	}

	msg := alerting.RenderAlert(lines)
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.metrics.NotifyFailures.Inc()
		logger.Error().Err(err).Int("alerts", len(lines)).Msg("failed to dispatch alert")
		return false
	}
	return true
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, fetcher.ErrNotFound):
		return "not_found"
	case errors.Is(err, fetcher.ErrMalformedQuote):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

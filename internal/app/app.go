package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-price-alerts/internal/alerting"
	"token-price-alerts/internal/config"
	"token-price-alerts/internal/fetcher"
	"token-price-alerts/internal/logging"
	"token-price-alerts/internal/metrics"
	"token-price-alerts/internal/service"
	"token-price-alerts/internal/storage"
	"token-price-alerts/internal/version"
)

const shutdownTimeout = 5 * time.Second

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newFetcher() fetcher.QuoteFetcher {
	return fetcher.NewDexScreener(fetcher.DexScreenerOptions{
		BaseURL:   a.Config.DexScreener.BaseURL,
		Timeout:   a.Config.DexScreener.RequestTimeout,
		UserAgent: a.Config.DexScreener.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return alerting.NewDiscard(a.Logger)
	}
	tg := a.Config.Alerting.Telegram
	opts := alerting.TelegramOptions{
		BotToken:  tg.BotToken,
		ChatID:    tg.ChatID,
		APIBase:   tg.APIBase,
		ParseMode: tg.ParseMode,
		Timeout:   tg.Timeout,
	}
	if tg.Transport == config.TransportBotAPI {
		return alerting.NewBotAPINotifier(opts, a.Logger)
	}
	return alerting.NewTelegramNotifier(opts, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.StateStore, func(), error) {
	store, err := storage.Open(ctx, a.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s state store: %w", a.Config.State.Driver, err)
	}
	closer := func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close state store")
		}
	}
	return store, closer, nil
}

func (a *App) newService(store storage.StateStore, m *metrics.Metrics) *service.Service {
	return service.New(a.Config, a.newFetcher(), store, a.newNotifier(), m, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, a.Config.Metrics.Namespace)

	svc := a.newService(store, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	if a.Config.Metrics.Enabled {
		g.Go(func() error {
			return a.serveMetrics(gctx, m)
		})
	}

	a.Logger.Info().
		Str("version", version.String()).
		Str("state_driver", a.Config.State.Driver).
		Int("assets", len(a.Config.Watch.Assets)).
		Msg("starting monitoring service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

func (a *App) serveMetrics(ctx context.Context, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              a.Config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("listen", srv.Addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("metrics listener shutdown")
		}
		return ctx.Err()
	}
}

// ExportOptions hold output paths for exporting the persisted snapshot.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}

// SimulateOptions configure a synthetic alert cycle.
type SimulateOptions struct {
	Asset    string
	Symbol   string
	Venue    string
	Previous string
	Current  string
}

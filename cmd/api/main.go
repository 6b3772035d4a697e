package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"oversight.dev/internal/approval"
	"oversight.dev/internal/auth"
	"oversight.dev/internal/config"
	"oversight.dev/internal/gateway"
	"oversight.dev/internal/httpapi"
	"oversight.dev/internal/ledger"
	"oversight.dev/internal/migrate"
	"oversight.dev/internal/notify"
	"oversight.dev/internal/notify/telegram"
	"oversight.dev/internal/obs"
	"oversight.dev/internal/policy"
	"oversight.dev/internal/risk"
	"oversight.dev/internal/store/pg"
)

func main() {
	configPath := flag.String("config", os.Getenv("OVERSIGHT_CONFIG"), "Path to YAML config file")
	autoMigrate := flag.Bool("migrate", true, "Apply embedded schema migrations on start when Postgres is configured")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := obs.InitLogger(obs.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg, *autoMigrate, log); err != nil {
		log.Fatal().Err(err).Msg("gateway_failed")
	}
}

func run(cfg *config.Config, autoMigrate bool, log zerolog.Logger) error {
	obs.Init()
	obs.InitBuildInfo(obs.Version, obs.Commit)

	if cfg.Tracing.Enabled {
		if err := obs.InitTracing("oversight-gateway", obs.Version, os.Stderr); err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.ShutdownTracing(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scorer, pol, err := loadPolicy(cfg.Rules.File)
	if err != nil {
		return err
	}

	var (
		store ledger.Store = ledger.NewInMemory()
		probe httpapi.ReadyProbe
	)
	if cfg.Store.PgDSN != "" {
		pgStore, err := pg.Open(cfg.Store.PgDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer pgStore.Close()
		if autoMigrate {
			applied, err := migrate.NewManager(pgStore.DB(), pg.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Strs("applied", applied).Msg("schema_ready")
		}
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	}

	registry := approval.NewRegistry(store, approval.WithTTL(cfg.Approvals.TTL))
	if n, err := registry.Restore(ctx); err != nil {
		return err
	} else if n > 0 {
		log.Info().Int("pending", n).Msg("approvals_restored")
	}

	notifier, tg := newNotifier(cfg.Notify.Telegram, telegram.New, log)
	dispatcher := notify.NewDispatcher(notifier,
		notify.WithTimeout(cfg.Notify.Timeout),
		notify.WithRetries(cfg.Notify.Retries),
	)

	svc, err := gateway.New(gateway.Deps{
		Scorer:     scorer,
		Policy:     pol,
		Ledger:     store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Version:    obs.Version,
	})
	if err != nil {
		return err
	}
	obs.SetPendingApprovals(registry.PendingCount())

	var issuer *auth.Issuer
	if cfg.Auth.Secret != "" {
		issuer, err = auth.NewIssuer(cfg.Auth.Secret)
		if err != nil {
			return err
		}
	}

	api := httpapi.New(probe, obs.Version, svc, issuer)
	api.SetRateLimit(cfg.HTTP.Rate.Burst, cfg.HTTP.Rate.PerSecond)

	// No WriteTimeout: /v1/events responses stay open.
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.RunExpiry(ctx, cfg.Approvals.SweepInterval)
	}()
	if tg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.Listen(ctx, dispatcher.HandleCallback)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", obs.Version).
			Bool("auth", issuer != nil).Str("notifier", notifier.Name()).Msg("gateway_listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	obs.SetReady(true)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			dispatcher.Close()
			return fmt.Errorf("listen: %w", err)
		}
	}

	log.Info().Msg("shutting_down")
	obs.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http_shutdown")
	}
	stop()
	wg.Wait()
	dispatcher.Close()
	log.Info().Msg("stopped")
	return nil
}

type telegramDialer func(telegram.Config) (*telegram.Notifier, error)

// newNotifier returns Nop when Telegram is unconfigured or cannot be reached
// at startup; approvals then go through the HTTP API only.
func newNotifier(cfg config.TelegramConfig, dial telegramDialer, log zerolog.Logger) (notify.Notifier, *telegram.Notifier) {
	if !cfg.Enabled() {
		log.Warn().Msg("notifier_disabled")
		return notify.Nop{}, nil
	}
	tg, err := dial(telegram.Config{Token: cfg.Token, ChatID: cfg.ChatID})
	if err != nil || tg == nil {
		log.Warn().Err(err).Msg("notifier_unavailable")
		return notify.Nop{}, nil
	}
	return tg, tg
}

// loadPolicy extends the reference scorer and policy with an optional rule file.
func loadPolicy(path string) (*risk.Scorer, *policy.Policy, error) {
	scorer, pol := risk.Default(), policy.Default()
	if path == "" {
		return scorer, pol, nil
	}
	file, err := risk.LoadRulesFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load rules %s: %w", path, err)
	}
	if scorer, err = scorer.WithRules(file.Rules...); err != nil {
		return nil, nil, err
	}
	overrides, err := policy.OverridesFromSpecs(file.Overrides)
	if err != nil {
		return nil, nil, err
	}
	return scorer, pol.WithOverrides(overrides...), nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aixgo-dev/nutrilog/internal/bot"
	tracing "github.com/aixgo-dev/nutrilog/internal/observability"
	"github.com/aixgo-dev/nutrilog/internal/server"
	"github.com/aixgo-dev/nutrilog/pkg/dateparse"
	"github.com/aixgo-dev/nutrilog/pkg/line"
	"github.com/aixgo-dev/nutrilog/pkg/observability"
	"github.com/aixgo-dev/nutrilog/pkg/records"
	"github.com/aixgo-dev/nutrilog/pkg/retention"
	"github.com/aixgo-dev/nutrilog/pkg/security"
	"github.com/aixgo-dev/nutrilog/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// limiterIdle is how long a user's rate limiter is kept after their last
// event.
const limiterIdle = 10 * time.Minute

func newServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long: `Starts the HTTP server receiving chat webhooks. Events are handled
in the background, one at a time per user. When retention.schedule is
set the cleanup sweep also runs on that cron schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, version)
		},
	}
}

func runServe(cmd *cobra.Command, version string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"version":   version,
		"store":     cfg.Store.Backend,
		"estimator": cfg.Estimator.Provider,
	}).Info("Starting nutrilog")

	if err := tracing.Init(tracing.ConfigFromEnv(), log); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	observability.InitMetrics()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	est, err := newEstimator(ctx, cfg)
	if err != nil {
		return err
	}

	messenger, err := line.NewClient(cfg.Line.ChannelAccessToken)
	if err != nil {
		return err
	}
	loc := cfg.Location()
	sessions := session.NewManager(
		session.WithTTL(cfg.Session.TTL),
		session.WithEndHook(bot.SessionEndHook(log)),
	)

	b, err := bot.New(bot.Config{
		Sessions:    sessions,
		Messenger:   messenger,
		Estimator:   est,
		Store:       store,
		Collections: collections(cfg),
		Dates:       dateparse.New(dateparse.WithLocation(loc)),
		AckDelay:    cfg.Session.AckDelay,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	limiter := security.NewRateLimiter(cfg.RateLimit.EventsPerSecond, cfg.RateLimit.Burst)
	dispatcher := bot.NewDispatcher(b,
		bot.WithRateLimiter(limiter),
		bot.WithEventTimeout(cfg.Server.EventTimeout),
		bot.WithDispatcherLogger(log),
	)

	sweeper := retention.NewSweeper(store, collections(cfg),
		retention.WithDays(cfg.Retention.Days),
		retention.WithLogger(log),
	)

	health := observability.NewHealthChecker(version)
	health.RegisterCheck(observability.StoreCheck(func(ctx context.Context) error {
		return records.Ping(ctx, store)
	}))
	health.RegisterCheck(observability.ExternalServiceCheck("line_api", messenger.Ping))

	srv := server.New(server.Config{
		Addr:          fmt.Sprintf(":%d", cfg.Server.Port),
		ChannelSecret: cfg.Line.ChannelSecret,
		Events:        dispatcher,
		Sweeper:       sweeper,
		Health:        health,
		WriteTimeout:  cfg.Retention.Timeout + 30*time.Second,
		Logger:        log,
	})

	var sched *retention.Scheduler
	if cfg.Retention.Schedule != "" {
		sched, err = retention.NewScheduler(cfg.Retention.Schedule, loc, sweeper, cfg.Retention.Timeout, log)
		if err != nil {
			return err
		}
		sched.Start()
		log.WithField("next", sched.Next().Format(time.RFC3339)).Info("[RETENTION] Scheduled cleanup enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Prune(limiterIdle); n > 0 {
					log.WithFields(logrus.Fields{
						"pruned":  n,
						"tracked": limiter.Tracked(),
					}).Debug("Pruned idle rate limiters")
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.WithField("pending_events", dispatcher.Pending()).Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
		}
		b.Close()
		_ = sessions.Close()
		if sched != nil {
			if err := sched.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("retention scheduler shutdown: %w", err))
			}
		}
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Nutrilog stopped")
	return nil
}

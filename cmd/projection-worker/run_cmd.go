package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/profile-projection/modules/projection"
	projectionoutbox "github.com/iota-uz/profile-projection/modules/projection/infrastructure/outbox"
	"github.com/iota-uz/profile-projection/modules/projection/infrastructure/redisstream"
	"github.com/iota-uz/profile-projection/modules/projection/saga"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/configuration"
	"github.com/iota-uz/profile-projection/pkg/eventbus"
	"github.com/iota-uz/profile-projection/pkg/logging"
	"github.com/iota-uz/profile-projection/pkg/metrics"
	"github.com/iota-uz/profile-projection/pkg/middleware"
	"github.com/iota-uz/profile-projection/pkg/outbox"
	eventbusdispatcher "github.com/iota-uz/profile-projection/pkg/outbox/dispatchers/eventbus"
)

func newRunCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Relay inbound events into the projection until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configuration.Use(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create missing outbox tables before starting")
	return cmd
}

type worker struct {
	conf   *configuration.Configuration
	logger *logrus.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
	group  *errgroup.Group
}

func run(ctx context.Context, conf *configuration.Configuration, migrate bool) error {
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		cleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer cleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.TempoURL)
	}

	pool, err := connectDB(ctx, conf)
	if err != nil {
		return err
	}
	defer pool.Close()

	w := &worker{conf: conf, logger: logger, pool: pool}
	if conf.Projection.EventLog == configuration.EventLogRedis || conf.Projection.ForwardToRedis {
		if w.redis, err = connectRedis(ctx, conf); err != nil {
			return err
		}
		defer w.redis.Close()
	}

	inbound, resolved := conf.Projection.InboundIdentifier(), conf.Projection.ResolvedIdentifier()
	if migrate {
		if err := projectionoutbox.EnsureTables(ctx, pool, inbound, resolved); err != nil {
			return err
		}
	}

	module := projection.NewModule(&projection.ModuleOptions{
		EventLog:          w.eventLog(resolved),
		TerminalRetention: conf.Projection.TerminalRetention,
	})
	logger.WithField("types", len(module.Dispatcher.Types())).Info("projection module ready")

	var groupCtx context.Context
	w.group, groupCtx = errgroup.WithContext(ctx)
	groupCtx = composables.WithLogger(groupCtx, logger.WithField("component", "projection"))

	if conf.Outbox.RelayEnabled {
		w.startRelay(groupCtx, inbound, projectionoutbox.NewInboundAdapter(pool, module.Dispatcher))
		if conf.Projection.EventLog == configuration.EventLogOutbox {
			dispatcher, err := w.resolvedDispatcher()
			if err != nil {
				return err
			}
			w.startRelay(groupCtx, resolved, dispatcher)
		}
	}
	if conf.Outbox.CleanerEnabled {
		w.startCleaner(groupCtx, inbound)
		if conf.Projection.EventLog == configuration.EventLogOutbox {
			w.startCleaner(groupCtx, resolved)
		}
	}
	if err := w.startOpsServer(groupCtx); err != nil {
		return err
	}

	err = w.group.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("projection worker stopped")
		return nil
	}
	return err
}

func (w *worker) eventLog(resolved pgx.Identifier) saga.EventLog {
	if w.conf.Projection.EventLog == configuration.EventLogRedis {
		return redisstream.NewEventLog(w.redis,
			redisstream.WithPrefix(w.conf.Projection.RedisStreamPrefix),
			redisstream.WithMaxLen(w.conf.Projection.RedisStreamMaxLen),
		)
	}
	return projectionoutbox.NewEventLog(outbox.NewPublisher(), resolved)
}

// resolvedDispatcher fans relayed resolved events out to in-process
// subscribers. Downstream consumers hang off the bus.
func (w *worker) resolvedDispatcher() (outbox.Dispatcher, error) {
	bus := eventbus.New(w.logger)
	log := w.logger.WithField("component", "resolved")
	if err := bus.Subscribe(func(meta *outbox.Meta, topic string, payload json.RawMessage) {
		log.WithFields(logrus.Fields{
			"stream":   meta.Stream,
			"topic":    topic,
			"event_id": meta.EventID.String(),
			"batch_id": meta.BatchID.String(),
			"bytes":    len(payload),
		}).Debug("resolved event published")
	}); err != nil {
		return nil, err
	}
	if w.conf.Projection.ForwardToRedis {
		fwd := redisstream.NewForwarder(w.redis,
			redisstream.WithPrefix(w.conf.Projection.RedisStreamPrefix),
			redisstream.WithMaxLen(w.conf.Projection.RedisStreamMaxLen),
		)
		if err := bus.Subscribe(fwd.Handle); err != nil {
			return nil, err
		}
	}
	return eventbusdispatcher.New(bus), nil
}

func (w *worker) startRelay(ctx context.Context, table pgx.Identifier, dispatcher outbox.Dispatcher) {
	log := w.logger.WithFields(logrus.Fields{"component": "outbox", "table": outbox.TableLabel(table)})
	relay, err := outbox.NewRelay(w.pool, table, dispatcher, w.conf.Outbox.RelayOptions(log))
	if err != nil {
		log.WithError(err).Warn("outbox: failed to create relay")
		return
	}
	w.group.Go(func() error {
		err := relay.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("outbox: relay stopped")
		}
		return err
	})
}

func (w *worker) startCleaner(ctx context.Context, table pgx.Identifier) {
	log := w.logger.WithFields(logrus.Fields{"component": "outbox", "table": outbox.TableLabel(table)})
	cleaner, err := outbox.NewCleaner(w.pool, table, w.conf.Outbox.CleanerOptions(log))
	if err != nil {
		log.WithError(err).Warn("outbox: failed to create cleaner")
		return
	}
	w.group.Go(func() error {
		err := cleaner.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("outbox: cleaner stopped")
		}
		return err
	})
}

func (w *worker) startOpsServer(ctx context.Context) error {
	checks := []metrics.Check{{Name: "database", Critical: true, Probe: w.pool.Ping}}
	if w.redis != nil {
		checks = append(checks, metrics.Check{
			Name:     "redis",
			Critical: w.conf.Projection.EventLog == configuration.EventLogRedis,
			Probe:    func(ctx context.Context) error { return w.redis.Ping(ctx).Err() },
		})
	}
	controllers := []metrics.Controller{metrics.NewHealthController(checks...)}
	if w.conf.Prometheus.Enabled {
		controllers = append(controllers, metrics.NewPrometheusController(w.conf.Prometheus.Path))
	}
	guard := w.conf.OpsGuard
	cidrs, err := middleware.ParseCIDRs(guard.CIDRs)
	if err != nil {
		return err
	}
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(w.logger),
		middleware.OpsGuard(middleware.OpsGuardOptions{
			Enforce:       w.conf.OpsGuardEnforced(),
			OpenPaths:     []string{"/health"},
			CIDRs:         cidrs,
			Token:         guard.Token,
			BasicAuthUser: guard.BasicAuthUser,
			BasicAuthPass: guard.BasicAuthPass,
			RealIPHeader:  guard.RealIPHeader,
		}),
	}
	srv := metrics.NewOpsServer(w.conf.OpsAddress, middlewares, controllers...)

	w.group.Go(func() error {
		w.logger.Infof("ops endpoints listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	w.group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}

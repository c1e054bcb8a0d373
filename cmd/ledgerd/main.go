package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/timewave-computer/causality-sub004/internal/archive"
	"github.com/timewave-computer/causality-sub004/internal/authz"
	"github.com/timewave-computer/causality-sub004/internal/causallog"
	"github.com/timewave-computer/causality-sub004/internal/clock"
	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/internal/engine"
	"github.com/timewave-computer/causality-sub004/internal/epoch"
	"github.com/timewave-computer/causality-sub004/internal/platform/config"
	"github.com/timewave-computer/causality-sub004/internal/platform/httpserver"
	"github.com/timewave-computer/causality-sub004/internal/platform/logger"
	"github.com/timewave-computer/causality-sub004/internal/platform/metrics"
	platformredis "github.com/timewave-computer/causality-sub004/internal/platform/redis"
	"github.com/timewave-computer/causality-sub004/internal/proof"
	"github.com/timewave-computer/causality-sub004/internal/register"
	"github.com/timewave-computer/causality-sub004/internal/timemap"
	httptransport "github.com/timewave-computer/causality-sub004/internal/transport/http"
	"github.com/timewave-computer/causality-sub004/internal/validator"
)

// main wires the ledger's components and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	clocks := clock.NewRegistry()
	epochs := epoch.NewManager()
	prover := proof.NewAssociationProver()

	registers, causalLog, cleanup, err := buildStores(ctx, cfg)
	if err != nil {
		log.Error("build stores", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	arch, archCleanup, err := buildArchive(cfg)
	if err != nil {
		log.Error("build archive", "error", err)
		os.Exit(1)
	}
	defer archCleanup()

	if len(cfg.Kafka.Brokers) > 0 {
		mirror, err := causallog.NewKafkaMirror(ctx, causalLog, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka mirror", "error", err)
			os.Exit(1)
		}
		defer mirror.Close(context.Background())
		causalLog = mirror
	}

	tracker := timemap.NewTracker(clocks.ForDomain(domain.DomainID(cfg.LocalDomain)), clocks)
	committer := timemap.NewCommitmentStore(registers, prover, epochs.Current,
		timemap.WithLogger(log))

	authorizer, err := authz.NewJWTAuthorizer([]byte(cfg.JWTSigningKey))
	if err != nil {
		log.Error("build authorizer", "error", err)
		os.Exit(1)
	}
	v, err := validator.New(registers, authorizer, prover, tracker,
		validator.WithLogger(log),
		validator.WithCollaboratorTimeout(cfg.CollaboratorTimeout))
	if err != nil {
		log.Error("build validator", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(registers, causalLog, clocks, domain.DomainID(cfg.LocalDomain), epochs.Current,
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithLockTTL(cfg.LockTTL))
	if err != nil {
		log.Error("build engine", "error", err)
		os.Exit(1)
	}

	collector, err := epoch.NewCollector(registers, arch, epochs, cfg.Archival,
		epoch.WithLogger(log),
		epoch.WithMetrics(m))
	if err != nil {
		log.Error("build collector", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(v, eng, registers, tracker, committer, causalLog, collector, epochs, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))
	watchdog := engine.NewWatchdog(registers, cfg.WatchdogInterval, log, m)

	log.Info("starting causality ledger", "addr", cfg.Addr, "local_domain", cfg.LocalDomain)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := watchdog.Run(gctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("ledger stopped", "error", err)
		os.Exit(1)
	}
	log.Info("ledger stopped")
}

// buildStores selects Postgres persistence when a DSN is configured, memory
// otherwise.
func buildStores(ctx context.Context, cfg config.Server) (register.Store, causallog.Log, func(), error) {
	if cfg.Postgres.DSN == "" {
		return register.NewInMemoryStore(), causallog.NewInMemoryLog(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	registers := register.NewPostgresStore(db)
	if err := registers.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	causalLog := causallog.NewPostgresLog(pool)
	if err := causalLog.Migrate(ctx); err != nil {
		pool.Close()
		db.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		db.Close()
	}
	return registers, causalLog, cleanup, nil
}

// buildArchive selects Redis archival when a URL is configured, memory
// otherwise.
func buildArchive(cfg config.Server) (archive.Archive, func(), error) {
	client, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return archive.NewInMemoryArchive(), func() {}, nil
	}
	return archive.NewRedisArchive(client.Client), func() { client.Close() }, nil
}

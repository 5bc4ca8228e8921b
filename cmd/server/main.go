package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"marquee/internal/jwtauth"
	"marquee/internal/payout/adapters"
	"marquee/internal/payout/alerts"
	"marquee/internal/payout/audit"
	"marquee/internal/payout/dispatch"
	"marquee/internal/payout/entitlement"
	"marquee/internal/payout/handler"
	"marquee/internal/payout/keys"
	"marquee/internal/payout/ledger"
	"marquee/internal/payout/locker"
	"marquee/internal/payout/notify"
	"marquee/internal/payout/ports"
	"marquee/internal/payout/service"
	auditstore "marquee/internal/payout/store/audit"
	historystore "marquee/internal/payout/store/history"
	keystore "marquee/internal/payout/store/keys"
	"marquee/internal/platform/config"
	"marquee/internal/platform/httpserver"
	"marquee/internal/platform/logger"
	"marquee/internal/platform/metrics"
	"marquee/internal/platform/middleware"
	redisplatform "marquee/internal/platform/redis"
	"marquee/internal/processor"
	"marquee/pkg/platform/circuit"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Storage: postgres when configured, in-memory otherwise (local dev).
	var (
		keyStore     ports.KeyStore
		historyStore ports.HistoryStore
		auditStore   ports.AuditStore
		txRunner     ports.TxRunner
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		keyStore = keystore.NewPostgres(db)
		historyStore = historystore.NewPostgres(db)
		auditStore = auditstore.NewPostgres(db)
		txRunner = newPayoutPostgresTx(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		keyStore = keystore.NewInMemory()
		historyStore = historystore.NewInMemory()
		auditStore = auditstore.NewInMemory()
		txRunner = memoryTx{}
	}

	// Recipient lock: Redis when configured so replicas serialize with each
	// other, in-process otherwise.
	var recipientLocker ports.RecipientLocker = locker.NewMemory()
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		recipientLocker = locker.NewRedis(redisClient.Client)
	}

	procClient := processor.New(cfg.Processor)
	procAdapter := adapters.NewProcessorAdapter(procClient,
		adapters.WithBreaker(circuit.New("processor-ledger")),
	)

	keySvc, err := keys.New(keyStore, keys.WithLogger(log))
	if err != nil {
		return err
	}
	ledgerClient, err := ledger.New(procAdapter,
		ledger.WithLogger(log),
		ledger.WithPagesMetric(m.LedgerPagesFetched),
	)
	if err != nil {
		return err
	}
	calc, err := entitlement.New(historyStore, cfg.Payout.ShareFraction, cfg.Payout.MinDisbursementCents)
	if err != nil {
		return err
	}
	executor, err := dispatch.New(procAdapter,
		dispatch.WithLogger(log),
		dispatch.WithDurationMetric(m.DispatchDuration),
	)
	if err != nil {
		return err
	}

	auditOpts := []audit.Option{audit.WithLogger(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := alerts.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer publisher.Close()
		auditOpts = append(auditOpts, audit.WithAlertPublisher(publisher))
	}
	auditSvc, err := audit.New(historyStore, auditStore, auditOpts...)
	if err != nil {
		return err
	}

	payoutSvc, err := service.New(service.Deps{
		Keys:       keySvc,
		Ledger:     ledgerClient,
		Calculator: calc,
		Executor:   executor,
		Audit:      auditSvc,
		KeyStore:   keyStore,
		TxRunner:   txRunner,
		Locker:     recipientLocker,
	},
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithNotifier(notify.NewLogNotifier(log)),
		service.WithDestinations(cfg.Processor.DefaultDestination, cfg.Processor.Destinations),
		service.WithRevenueSince(cfg.Payout.RevenueSince),
	)
	if err != nil {
		return err
	}

	router := newRouter(cfg, log, payoutSvc)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting marquee payout engine",
		"addr", cfg.Addr,
		"processor_env", cfg.Processor.Environment,
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg config.Server, log *slog.Logger, payoutSvc *service.Service) http.Handler {
	jwtSvc := jwtauth.New(cfg.JWTSigningKey, "marquee")
	payoutHandler := handler.New(payoutSvc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/admin/payouts", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(jwtSvc, log))
		r.Use(middleware.ContentTypeJSON)
		r.Mount("/", payoutHandler.Routes())
	})

	return r
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"healthdash/internal/audit"
	"healthdash/internal/contact"
	contacthandler "healthdash/internal/contact/handler"
	contactmetrics "healthdash/internal/contact/metrics"
	"healthdash/internal/globalfund"
	gfhandler "healthdash/internal/globalfund/handler"
	gfmetrics "healthdash/internal/globalfund/metrics"
	httpapi "healthdash/internal/http"
	"healthdash/internal/indicator"
	indicatorhandler "healthdash/internal/indicator/handler"
	indicatormetrics "healthdash/internal/indicator/metrics"
	"healthdash/internal/platform/config"
	"healthdash/internal/platform/httpserver"
	"healthdash/internal/platform/kafka"
	"healthdash/internal/platform/logger"
	"healthdash/internal/platform/metrics"
	"healthdash/internal/platform/postgres"
	"healthdash/internal/platform/redis"
	"healthdash/internal/process"
	processhandler "healthdash/internal/process/handler"
	processmetrics "healthdash/internal/process/metrics"
	ratelimitmetrics "healthdash/internal/ratelimit/metrics"
	ratelimit "healthdash/internal/ratelimit/middleware"
	"healthdash/internal/ratelimit/store/bucket"
	"healthdash/internal/reference"
	refhandler "healthdash/internal/reference/handler"
	"healthdash/internal/session"
	sessionhandler "healthdash/internal/session/handler"
	sessionmetrics "healthdash/internal/session/metrics"
	gfsource "healthdash/internal/sources/globalfund"
	"healthdash/internal/sources/who"
	"healthdash/internal/sources/worldbank"
	"healthdash/internal/status"
	statushandler "healthdash/internal/status/handler"
	statusmetrics "healthdash/internal/status/metrics"
	"healthdash/internal/upstream"
	upstreammetrics "healthdash/internal/upstream/metrics"
	"healthdash/internal/upstream/store"
)

// memoPruneInterval is how often expired Postgres memo rows are deleted.
const memoPruneInterval = 30 * time.Minute

// sessionPurgeInterval is how often expired in-memory sessions are dropped.
const sessionPurgeInterval = 5 * time.Minute

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// infra holds optional backing services. Nil fields are not configured.
type infra struct {
	redis    *redis.Client
	pool     *pgxpool.Pool
	producer *kafka.Producer
}

func (i infra) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.pool != nil {
		i.pool.Close()
	}
	_ = i.redis.Close()
}

func (i infra) checks() map[string]httpapi.HealthCheck {
	checks := make(map[string]httpapi.HealthCheck)
	if i.redis != nil {
		checks["redis"] = i.redis.Health
	}
	if i.pool != nil {
		checks["postgres"] = i.pool.Ping
	}
	if i.producer != nil {
		checks["kafka"] = i.producer.Health
	}
	return checks
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (infra, error) {
	var (
		in  infra
		err error
	)
	if in.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return in, err
	}
	if cfg.Memo.Backend == config.BackendPostgres {
		if in.pool, err = postgres.New(ctx, cfg.Postgres); err != nil {
			in.close()
			return infra{}, err
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		if in.producer, err = kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Audit.Topic); err != nil {
			in.close()
			return infra{}, err
		}
		log.Info("audit events published to kafka", "topic", cfg.Audit.Topic)
	}
	return in, nil
}

func memoStore(ctx context.Context, cfg config.Config, in infra, log *slog.Logger) (upstream.Store, error) {
	switch cfg.Memo.Backend {
	case config.BackendRedis:
		return store.NewRedisStore(in.redis.Client, cfg.Memo.TTL), nil
	case config.BackendPostgres:
		pg := store.NewPostgresStore(in.pool, cfg.Memo.TTL)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("memo schema: %w", err)
		}
		go prune(ctx, pg, log)
		return pg, nil
	default:
		return store.NewInMemoryStore(cfg.Memo.Size, cfg.Memo.TTL), nil
	}
}

func prune(ctx context.Context, pg *store.PostgresStore, log *slog.Logger) {
	ticker := time.NewTicker(memoPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.Prune(ctx)
			if err != nil {
				log.WarnContext(ctx, "memo prune failed", "error", err)
				continue
			}
			log.DebugContext(ctx, "memo pruned", "rows", n)
		}
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.UsesDevSigningKey() {
		log.Warn("SESSION_SIGNING_KEY is the development default; set a secret in production")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	// Upstream fetching, memoized per URL.
	upMetrics := upstreammetrics.New()
	client := upstream.NewClient(
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithRateLimit(cfg.Upstream.RPS, cfg.Upstream.Burst),
		upstream.WithMetrics(upMetrics),
		upstream.WithLogger(log),
	)
	memoBackend, err := memoStore(ctx, cfg, in, log)
	if err != nil {
		return err
	}
	memo, err := upstream.NewMemo(client, memoBackend,
		upstream.WithBackendName(cfg.Memo.Backend),
		upstream.WithMemoMetrics(upMetrics),
		upstream.WithMemoLogger(log),
	)
	if err != nil {
		return err
	}

	whoSrc := who.NewClient(cfg.Sources.WHO, memo)
	wbSrc := worldbank.NewClient(cfg.Sources.WorldBank, memo)
	gfSrc := gfsource.NewClient(cfg.Sources.GlobalFund, memo)

	loader, err := reference.NewLoader(whoSrc, wbSrc,
		reference.WithLogger(log),
		reference.WithForgetter(memo, append(
			[]string{who.CountriesURL(cfg.Sources.WHO)},
			worldbank.CountriesURLs(cfg.Sources.WorldBank)...,
		)...),
	)
	if err != nil {
		return err
	}

	// Audit trail. Kafka when brokers are configured, structured logs otherwise.
	var sink audit.Sink = audit.NewLogSink(log)
	if in.producer != nil {
		sink = audit.NewKafkaSink(in.producer)
	}
	auditor := audit.NewPublisher(sink,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics()),
	)
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		_ = auditor.Run(ctx)
	}()
	// Stops the publisher and waits for its final flush before the producer closes.
	defer func() {
		cancel()
		<-auditDone
	}()
	hasher, err := audit.NewPseudonymizer(cfg.Audit.HashKey)
	if err != nil {
		return err
	}

	// Upstream availability, shared by the status page and the disclaimer gates.
	statusSvc, err := status.New(client,
		status.DefaultAPIs(cfg.Sources.WHO, cfg.Sources.WorldBank, cfg.Sources.GlobalFund),
		status.WithLogger(log),
		status.WithMetrics(statusmetrics.New()),
	)
	if err != nil {
		return err
	}

	var sessionStore session.Store
	if cfg.Session.Backend == config.BackendRedis {
		sessionStore = session.NewRedisStore(in.redis.Client)
	} else {
		mem := session.NewInMemoryStore()
		go mem.PurgeEvery(ctx, sessionPurgeInterval)
		sessionStore = mem
	}
	sessMetrics := sessionmetrics.New()
	sessions, err := session.New(sessionStore, session.NewTokens(cfg.Session.SigningKey),
		[]string{indicatorhandler.Dashboard, gfhandler.Dashboard},
		session.WithTTL(cfg.Session.TTL),
		session.WithProbe(statusSvc),
		session.WithAuditor(auditor),
		session.WithLogger(log),
		session.WithMetrics(sessMetrics),
	)
	if err != nil {
		return err
	}

	indMetrics := indicatormetrics.New()
	indicators, err := indicator.New(whoSrc, loader, indicator.WithLogger(log), indicator.WithMetrics(indMetrics))
	if err != nil {
		return err
	}
	gfMetrics := gfmetrics.New()
	grants, err := globalfund.New(gfSrc, loader, globalfund.WithLogger(log), globalfund.WithMetrics(gfMetrics))
	if err != nil {
		return err
	}
	procMetrics := processmetrics.New()
	proc := process.New(process.WithLogger(log), process.WithMetrics(procMetrics))

	contactSvc, err := contact.New(cfg.Contact.RelayURL,
		contact.WithAuditor(auditor, hasher),
		contact.WithLogger(log),
		contact.WithMetrics(contactmetrics.New()),
	)
	if err != nil {
		return err
	}

	var buckets ratelimit.BucketStore = bucket.NewInMemoryBucketStore()
	if in.redis != nil {
		buckets = bucket.NewRedisBucketStore(in.redis.Client)
	}
	limiter := ratelimit.New(buckets, log, ratelimit.WithMetrics(ratelimitmetrics.New()))

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.Upstream.Timeout*2 + 10*time.Second,
		Checks:         in.checks(),
		Sessions:       sessions,
		SessionMetrics: sessMetrics,
		SecureCookie:   cfg.Session.Secure,
		Limiter:        limiter,
		Status:         statushandler.New(statusSvc, log),
		Session:        sessionhandler.New(sessions, log),
		Reference:      refhandler.New(loader, log),
		Indicators:     indicatorhandler.New(indicators, auditor, sessions, log, indMetrics),
		GlobalFund:     gfhandler.New(grants, auditor, sessions, log, gfMetrics),
		Process:        processhandler.New(proc, auditor, log, procMetrics),
		Contact:        contacthandler.New(contactSvc, log),
	})

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Upstream.Timeout)
	errCh := make(chan error, 1)
	go func() {
		log.Info("healthdash listening",
			"addr", cfg.Server.Addr,
			"memo_backend", cfg.Memo.Backend,
			"session_backend", cfg.Session.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

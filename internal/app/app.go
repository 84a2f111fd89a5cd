package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/api"
	"github.com/afmurillo/checkout-payments/internal/health"
	"github.com/afmurillo/checkout-payments/internal/messaging/kafka"
	"github.com/afmurillo/checkout-payments/internal/service/idempotency"
	"github.com/afmurillo/checkout-payments/internal/service/outbox"
	"github.com/afmurillo/checkout-payments/internal/service/payment"
	"github.com/afmurillo/checkout-payments/internal/service/poller"
	"github.com/afmurillo/checkout-payments/internal/service/stock"
	"github.com/afmurillo/checkout-payments/internal/version"
)

// Run собирает сервис по конфигурации и блокируется до отмены контекста
// или падения HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.Info(version.String())

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close storage")
		}
	}()

	kafkaProducer := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	stockOpts := []stock.Option{}
	if kafkaProducer != nil {
		stockOpts = append(stockOpts, stock.WithKafka(kafkaProducer))
	}
	stockReconciler := stock.NewReconciler(
		deps.Transactions, deps.Products, deps.Outbox, deps.Timeline,
		logger.WithField("component", "stock-reconciler"),
		stockOpts...,
	)

	var (
		processor        payment.Processor
		statusReconciler payment.StatusReconciler
	)
	if kafkaProducer != nil {
		processor = payment.NewProcessorWithKafka(
			deps.Transactions, deps.Products, deps.Customers, deps.Gateway,
			stockReconciler, deps.Outbox, deps.Timeline, kafkaProducer,
			logger.WithField("component", "payment-processor"),
		)
		statusReconciler = payment.NewStatusReconcilerWithKafka(
			deps.Transactions, deps.Gateway, deps.Outbox, deps.Timeline, kafkaProducer,
			logger.WithField("component", "status-reconciler"),
		)
	} else {
		processor = payment.NewProcessor(
			deps.Transactions, deps.Products, deps.Customers, deps.Gateway,
			stockReconciler, deps.Outbox, deps.Timeline,
			logger.WithField("component", "payment-processor"),
		)
		statusReconciler = payment.NewStatusReconciler(
			deps.Transactions, deps.Gateway, deps.Outbox, deps.Timeline,
			logger.WithField("component", "status-reconciler"),
		)
	}

	creator := payment.NewCreator(deps.Transactions, deps.Products, deps.Customers,
		logger.WithField("component", "transaction-creator"))

	handler := api.NewHandler(creator, processor, statusReconciler, stockReconciler, deps.Timeline,
		logger.WithField("component", "http-api"))
	router := api.NewRouter(api.RouterOptions{
		Handler:        handler,
		Idempotency:    deps.Idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         logger.WithField("component", "idempotency"),
	})

	buildVersion, _, _ := version.Info()
	healthReg := health.NewRegistry(buildVersion)
	if deps.Store != nil {
		healthReg.Register("postgres", deps.Store.Ping)
	}

	metricsSrv := startMetricsServer(cfg.MetricsAddr, healthReg, logger)
	defer shutdownHTTP(metricsSrv, logger)

	var workers sync.WaitGroup

	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicPaymentEvents)
		dlq := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)
		outboxWorker := outbox.NewWorker(deps.Outbox, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			outboxWorker.Run(ctx)
		}()

		if auditConsumer := initAuditConsumer(cfg, kafkaProducer, logger); auditConsumer != nil {
			if startErr := auditConsumer.Start(ctx); startErr != nil {
				logger.WithError(startErr).Warn("failed to start audit consumer")
			} else {
				defer func() {
					if stopErr := auditConsumer.Stop(); stopErr != nil {
						logger.WithError(stopErr).Warn("failed to stop audit consumer")
					}
				}()
			}
		}
	} else {
		logger.Info("kafka is not configured, outbox worker is not started")
	}

	pendingPoller := poller.New(deps.Transactions, statusReconciler, stockReconciler,
		poller.WithLogger(logger.WithField("component", "pending-poller")),
		poller.WithPollInterval(cfg.PollerInterval),
		poller.WithBatchSize(cfg.PollerBatchSize),
		poller.WithParallelism(cfg.PollerParallelism),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		pendingPoller.Run(ctx)
	}()

	cleanupWorker := idempotency.NewCleanupWorker(deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanupWorker.Run(ctx)
	}()

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("payment API listening on %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping")
		shutdownHTTP(apiSrv, logger)
		workers.Wait()
		return ctx.Err()
	case err := <-errCh:
		workers.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer поднимает служебный HTTP: метрики и health-точки.
func startMetricsServer(addr string, reg *health.Registry, logger *log.Entry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", reg.Handler())
	mux.Handle("/readyz", reg.ReadinessHandler())
	mux.HandleFunc("/livez", health.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/service/payment"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultBatchSize    = 50
	defaultParallelism  = 4
)

var (
	sweepTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_poller_transactions_total",
		Help: "Total number of pending transactions swept grouped by result.",
	}, []string{"result"})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_poller_sweep_duration_seconds",
		Help:    "Duration of one pending-payment sweep in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// Option настраивает Poller.
type Option func(*Poller)

// WithLogger задаёт logger поллера.
func WithLogger(logger *log.Entry) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPollInterval задаёт период между проходами.
func WithPollInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт максимум транзакций за один проход.
func WithBatchSize(batchSize int) Option {
	return func(p *Poller) {
		if batchSize > 0 {
			p.batchSize = batchSize
		}
	}
}

// WithParallelism задаёт число одновременных сверок в проходе.
func WithParallelism(parallelism int) Option {
	return func(p *Poller) {
		if parallelism > 0 {
			p.parallelism = parallelism
		}
	}
}

// Poller периодически опрашивает провайдера по pending-транзакциям,
// уже отправленным на оплату. Списание стока по подтверждённым платежам —
// политика этого слоя: сверка статуса сама стоком не управляет.
type Poller struct {
	transactions domain.TransactionRepository
	reconciler   payment.StatusReconciler
	stock        payment.StockReconciler
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	parallelism  int
}

// New создаёт поллер pending-платежей.
func New(
	transactions domain.TransactionRepository,
	reconciler payment.StatusReconciler,
	stock payment.StockReconciler,
	options ...Option,
) *Poller {
	p := &Poller{
		transactions: transactions,
		reconciler:   reconciler,
		stock:        stock,
		logger:       log.WithField("component", "pending-poller"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		parallelism:  defaultParallelism,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Run запускает периодические проходы до отмены ctx.
func (p *Poller) Run(ctx context.Context) {
	if p.transactions == nil || p.reconciler == nil {
		p.logger.Warn("pending poller is disabled: repo or reconciler is nil")
		return
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один проход по pending-транзакциям с provider id.
func (p *Poller) SweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	defer func() {
		sweepDuration.Observe(time.Since(start).Seconds())
	}()

	pending, err := p.transactions.ListPendingWithProvider(p.batchSize)
	if err != nil {
		p.logger.WithError(err).Warn("failed to list pending transactions")
		return
	}
	if len(pending) == 0 {
		return
	}

	p.logger.WithField("count", len(pending)).Debug("sweeping pending transactions")

	limit := p.parallelism
	if limit <= 0 {
		limit = 1
	}
	if limit > len(pending) {
		limit = len(pending)
	}

	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, tx := range pending {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(transactionID string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			p.checkOne(ctx, transactionID)
		}(tx.ID)
	}
	wg.Wait()
}

// checkOne сверяет одну транзакцию и применяет stock-политику при подтверждении.
func (p *Poller) checkOne(ctx context.Context, transactionID string) {
	result, err := p.reconciler.Check(ctx, transactionID)
	if err != nil {
		p.logger.WithError(err).WithField("transaction_id", transactionID).Warn("status check failed")
		sweepTransactions.WithLabelValues("error").Inc()
		return
	}

	if !result.Payment.StatusChanged {
		sweepTransactions.WithLabelValues("unchanged").Inc()
		return
	}

	sweepTransactions.WithLabelValues(string(result.Payment.CurrentStatus)).Inc()
	p.logger.WithFields(log.Fields{
		"transaction_id": transactionID,
		"status":         result.Payment.CurrentStatus,
	}).Info("pending transaction resolved")

	if result.Payment.CurrentStatus == domain.TransactionStatusCompleted && p.stock != nil {
		if _, err := p.stock.Reconcile(ctx, transactionID, 1); err != nil {
			p.logger.WithError(err).WithField("transaction_id", transactionID).
				Warn("stock reconciliation after confirmation failed")
		}
	}
}

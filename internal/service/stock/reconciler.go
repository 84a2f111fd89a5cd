package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/messaging/kafka"
	"github.com/afmurillo/checkout-payments/internal/metrics"
)

// Reconciler — единственная точка изменения стока. Вызывается избыточно из
// обоих платёжных потоков, поэтому списание идемпотентно: признак
// StockApplied на транзакции захватывается через optimistic locking до
// изменения остатка, и при конкурентном вызове проигравший пропускает списание.
type Reconciler struct {
	transactions  domain.TransactionRepository
	products      domain.ProductRepository
	outbox        domain.OutboxRepository
	timeline      domain.TimelineRepository
	logger        *log.Entry
	metrics       *metrics.PaymentMetrics
	kafkaProducer *kafka.Producer
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithKafka включает публикацию событий списания в Kafka.
func WithKafka(producer *kafka.Producer) Option {
	return func(r *Reconciler) {
		r.kafkaProducer = producer
	}
}

// WithoutMetrics отключает метрики (для тестов).
func WithoutMetrics() Option {
	return func(r *Reconciler) {
		r.metrics = nil
	}
}

// NewReconciler создаёт сверку стока.
func NewReconciler(
	transactions domain.TransactionRepository,
	products domain.ProductRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
	opts ...Option,
) *Reconciler {
	if logger == nil {
		logger = log.New().WithField("component", "stock-reconciler")
	}
	r := &Reconciler{
		transactions: transactions,
		products:     products,
		outbox:       outbox,
		timeline:     timeline,
		logger:       logger,
		metrics:      metrics.NewPaymentMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const (
	maxClaimRetries = 3
	claimBaseDelay  = 10 * time.Millisecond
)

// Reconcile списывает quantity единиц товара по завершённой транзакции.
// Транзакция обязана быть completed; повторный вызов по той же транзакции
// возвращает актуальный товар без повторного списания.
func (r *Reconciler) Reconcile(ctx context.Context, transactionID string, quantity int32) (product domain.Product, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("transaction_id", transactionID).
				WithField("panic", rec).Error("stock reconciliation panicked")
			err = fmt.Errorf("reconcile stock failed: panic: %v", rec)
		}
		if err != nil && r.metrics != nil {
			r.metrics.RecordStockFailed()
		}
	}()

	if transactionID == "" {
		return domain.Product{}, domain.ErrTransactionIDRequired
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return domain.Product{}, domain.ErrQuantityInvalid
	}

	tx, err := r.transactions.Get(transactionID)
	if err != nil {
		return domain.Product{}, err
	}
	if tx.Status != domain.TransactionStatusCompleted {
		return domain.Product{}, domain.ErrTransactionNotCompleted
	}

	logger := r.logger.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"product_id":     tx.ProductID,
	})

	if tx.StockApplied {
		logger.Debug("stock already applied, skipping")
		if r.metrics != nil {
			r.metrics.RecordStockSkipped()
		}
		return r.products.Get(tx.ProductID)
	}

	claimed, err := r.claimStockApplied(&tx)
	if err != nil {
		return domain.Product{}, err
	}
	if !claimed {
		logger.Debug("stock claimed by concurrent caller, skipping")
		if r.metrics != nil {
			r.metrics.RecordStockSkipped()
		}
		return r.products.Get(tx.ProductID)
	}

	product, err = r.reduceProductStock(tx.ProductID, quantity)
	if err != nil {
		// Списание не состоялось: признак обязан вернуться в false, иначе
		// все последующие вызовы пропустят списание как уже выполненное.
		logger.WithError(err).Error("stock decrement failed after claim, releasing claim")
		r.unclaimStockApplied(tx.ID)
		return domain.Product{}, err
	}

	logger.WithFields(log.Fields{
		"quantity":        quantity,
		"remaining_stock": product.Stock,
	}).Info("stock reconciled")
	if r.metrics != nil {
		r.metrics.RecordStockReconciled()
	}
	r.emitEvent(tx.ID, product, quantity)

	return product, nil
}

// claimStockApplied захватывает признак списания на транзакции.
// Возвращает false, если признак успел поставить конкурентный вызов.
func (r *Reconciler) claimStockApplied(tx *domain.Transaction) (bool, error) {
	for attempt := 0; attempt < maxClaimRetries; attempt++ {
		tx.MarkStockApplied()
		if err := r.transactions.Save(*tx); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxClaimRetries-1 {
				fresh, loadErr := r.transactions.Get(tx.ID)
				if loadErr != nil {
					return false, loadErr
				}
				if fresh.StockApplied {
					return false, nil
				}
				*tx = fresh
				time.Sleep(claimBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return false, fmt.Errorf("persist transaction failed: %w", err)
		}
		tx.Version++
		return true, nil
	}
	return false, domain.ErrTransactionVersionConflict
}

// unclaimStockApplied снимает ранее захваченный признак списания best-effort:
// при неудаче повторная попытка произойдёт только вручную, поэтому финальный
// отказ логируется как ошибка.
func (r *Reconciler) unclaimStockApplied(transactionID string) {
	for attempt := 0; attempt < maxClaimRetries; attempt++ {
		tx, err := r.transactions.Get(transactionID)
		if err != nil {
			r.logger.WithError(err).WithField("transaction_id", transactionID).
				Error("failed to load transaction while releasing stock claim")
			return
		}
		if !tx.StockApplied {
			return
		}

		tx.ClearStockApplied()
		if err := r.transactions.Save(tx); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxClaimRetries-1 {
				time.Sleep(claimBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			r.logger.WithError(err).WithField("transaction_id", transactionID).
				Error("failed to release stock claim, manual reconciliation required")
			return
		}
		return
	}
}

// reduceProductStock уменьшает остаток товара с retry при version conflict.
func (r *Reconciler) reduceProductStock(productID string, quantity int32) (domain.Product, error) {
	for attempt := 0; attempt < maxClaimRetries; attempt++ {
		product, err := r.products.Get(productID)
		if err != nil {
			return domain.Product{}, err
		}
		if !product.Active {
			return domain.Product{}, domain.ErrProductInactive
		}

		reduced, err := product.ReduceStock(quantity)
		if err != nil {
			return domain.Product{}, err
		}

		if err := r.products.Save(reduced); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxClaimRetries-1 {
				time.Sleep(claimBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Product{}, fmt.Errorf("persist product failed: %w", err)
		}
		reduced.Version++
		return reduced, nil
	}
	return domain.Product{}, domain.ErrProductVersionConflict
}

// emitEvent фиксирует списание в outbox, timeline и Kafka (всё best-effort).
func (r *Reconciler) emitEvent(transactionID string, product domain.Product, quantity int32) {
	payload := map[string]interface{}{
		"transaction_id":  transactionID,
		"product_id":      product.ID,
		"quantity":        quantity,
		"remaining_stock": product.Stock,
		"ts":              time.Now().UTC().Format(time.RFC3339Nano),
	}

	if r.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			r.logger.WithError(err).WithField("transaction_id", transactionID).Error("marshal event failed")
		} else {
			msg := domain.OutboxMessage{
				AggregateType: "transaction",
				AggregateID:   transactionID,
				EventType:     "StockReconciled",
				Payload:       data,
			}
			if _, err := r.outbox.Enqueue(msg); err != nil {
				r.logger.WithError(err).WithField("transaction_id", transactionID).Error("enqueue event failed")
			} else if r.metrics != nil {
				r.metrics.RecordOutboxEvent()
			}
		}
	}

	if r.timeline != nil {
		event := domain.TimelineEvent{
			TransactionID: transactionID,
			Type:          "StockReconciled",
			Occurred:      time.Now().UTC(),
		}
		if err := r.timeline.Append(event); err != nil {
			r.logger.WithError(err).WithField("transaction_id", transactionID).Warn("append timeline event failed")
		} else if r.metrics != nil {
			r.metrics.RecordTimelineEvent()
		}
	}

	if r.kafkaProducer != nil {
		event := kafka.NewPaymentEvent(kafka.EventTypeStockReconciled, transactionID, map[string]interface{}{
			"product_id":      product.ID,
			"quantity":        quantity,
			"remaining_stock": product.Stock,
		})
		if err := r.kafkaProducer.PublishEvent(kafka.TopicPaymentEvents, transactionID, event); err != nil {
			r.logger.WithError(err).WithField("transaction_id", transactionID).
				Warn("failed to publish stock event to kafka")
		}
	}
}

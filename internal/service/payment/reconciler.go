package payment

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/messaging/kafka"
	"github.com/afmurillo/checkout-payments/internal/metrics"
)

// StatusInfo — результат сверки статуса с провайдером.
type StatusInfo struct {
	CurrentStatus domain.TransactionStatus
	// ProviderStatus — «сырой» статус провайдера; пуст, если провайдер не опрашивался.
	ProviderStatus domain.ProviderStatus
	StatusChanged  bool
	Message        string
}

// StatusResult возвращается вызывающему слою после сверки.
type StatusResult struct {
	Transaction domain.Transaction
	Payment     StatusInfo
}

// StatusReconciler повторно запрашивает статус уже отправленного платежа
// и применяет изменившийся статус к транзакции.
type StatusReconciler interface {
	Check(ctx context.Context, transactionID string) (StatusResult, error)
}

type statusReconciler struct {
	transactions  domain.TransactionRepository
	gateway       domain.PaymentGateway
	outbox        domain.OutboxRepository
	timeline      domain.TimelineRepository
	logger        *log.Entry
	metrics       *metrics.PaymentMetrics
	kafkaProducer *kafka.Producer
}

// NewStatusReconciler создаёт рабочий экземпляр сверки статусов.
func NewStatusReconciler(
	transactions domain.TransactionRepository,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) StatusReconciler {
	if logger == nil {
		logger = log.New().WithField("component", "status-reconciler")
	}
	return &statusReconciler{
		transactions: transactions,
		gateway:      gateway,
		outbox:       outbox,
		timeline:     timeline,
		logger:       logger,
		metrics:      metrics.NewPaymentMetrics(),
	}
}

// NewStatusReconcilerWithKafka создаёт сверку статусов с Kafka producer.
func NewStatusReconcilerWithKafka(
	transactions domain.TransactionRepository,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) StatusReconciler {
	r := NewStatusReconciler(transactions, gateway, outbox, timeline, logger).(*statusReconciler)
	r.kafkaProducer = kafkaProducer
	return r
}

// NewStatusReconcilerWithoutMetrics создаёт сверку статусов без метрик (для тестов).
func NewStatusReconcilerWithoutMetrics(
	transactions domain.TransactionRepository,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) StatusReconciler {
	r := NewStatusReconciler(transactions, gateway, outbox, timeline, logger).(*statusReconciler)
	r.metrics = nil
	return r
}

// Check сверяет статус транзакции с провайдером. Сбой провайдера не фатален:
// возвращается последнее известное состояние транзакции. Списание стока по
// изменившемуся статусу — политика вызывающего слоя, не этого метода.
func (r *statusReconciler) Check(ctx context.Context, transactionID string) (result StatusResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("transaction_id", transactionID).
				WithField("panic", rec).Error("status reconciliation panicked")
			err = fmt.Errorf("get transaction status failed: panic: %v", rec)
		}
	}()

	if transactionID == "" {
		return StatusResult{}, domain.ErrTransactionIDRequired
	}

	tx, err := r.transactions.Get(transactionID)
	if err != nil {
		return StatusResult{}, err
	}

	logger := r.logger.WithField("transaction_id", tx.ID)

	// Платёж ещё не отправлялся провайдеру: сверять нечего, это не ошибка.
	if tx.ProviderTransactionID == "" {
		r.recordCheck("not_submitted")
		return StatusResult{
			Transaction: tx,
			Payment: StatusInfo{
				CurrentStatus: tx.Status,
				StatusChanged: false,
				Message:       "Payment has not been submitted to the provider yet",
			},
		}, nil
	}

	gatewayStart := time.Now()
	payment, queryErr := r.gateway.QueryStatus(ctx, tx.ProviderTransactionID)
	if r.metrics != nil {
		r.metrics.RecordGatewayDuration("query_status", time.Since(gatewayStart))
	}
	if queryErr != nil {
		// Soft-fail: отвечаем последним известным состоянием.
		logger.WithError(queryErr).Warn("provider status query failed, returning last known state")
		r.recordCheck("query_failed")
		return StatusResult{
			Transaction: tx,
			Payment: StatusInfo{
				CurrentStatus: tx.Status,
				StatusChanged: false,
				Message:       statusMessage(tx.Status, false),
			},
		}, nil
	}

	mapped := domain.MapProviderStatus(payment.Status)
	changed := mapped != tx.Status

	if changed {
		if applyErr := r.applyStatusChange(&tx, payment, mapped); applyErr != nil {
			// Переход не применён (запрещён машиной состояний либо не
			// сохранился): вызывающий получает прежний статус без признака
			// изменения, а не рассогласованную пару.
			logger.WithError(applyErr).WithFields(log.Fields{
				"provider_status": payment.Status,
				"stored_status":   tx.Status,
			}).Error("failed to apply reconciled status")
			r.recordCheck("apply_failed")
			return StatusResult{
				Transaction: tx,
				Payment: StatusInfo{
					CurrentStatus:  tx.Status,
					ProviderStatus: payment.Status,
					StatusChanged:  false,
					Message:        "Provider status could not be applied to the transaction",
				},
			}, nil
		}
		logger.WithFields(log.Fields{
			"provider_status": payment.Status,
			"new_status":      mapped,
		}).Info("transaction status changed after reconciliation")
		r.recordCheck("changed")

		emitTransactionEvent(r.outbox, r.timeline, logger, r.metrics, tx.ID, "PaymentStatusChanged", map[string]interface{}{
			"provider_status": string(payment.Status),
			"status":          string(mapped),
		})
		r.publishEvent(tx.ID, payment.Status, mapped)
	} else {
		r.recordCheck("unchanged")
	}

	return StatusResult{
		Transaction: tx,
		Payment: StatusInfo{
			CurrentStatus:  tx.Status,
			ProviderStatus: payment.Status,
			StatusChanged:  changed,
			Message:        statusMessage(tx.Status, changed),
		},
	}, nil
}

// applyStatusChange применяет переход состояния по отображённому статусу и
// сохраняет. Работает на копии: при отказе перехода или сбое сохранения
// tx остаётся нетронутой.
func (r *statusReconciler) applyStatusChange(tx *domain.Transaction, payment domain.PaymentResult, mapped domain.TransactionStatus) error {
	updated := *tx
	switch mapped {
	case domain.TransactionStatusCompleted:
		if err := updated.MarkCompleted(payment.ProviderTransactionID, payment.Reference); err != nil {
			return err
		}
	case domain.TransactionStatusFailed:
		if err := updated.MarkFailed(); err != nil {
			return err
		}
	default:
		updated.MarkPending(payment.ProviderTransactionID, payment.Reference)
	}

	if err := r.transactions.Save(updated); err != nil {
		return fmt.Errorf("persist transaction failed: %w", err)
	}
	updated.Version++
	*tx = updated
	return nil
}

func (r *statusReconciler) recordCheck(result string) {
	if r.metrics != nil {
		r.metrics.RecordStatusCheck(result)
	}
}

func (r *statusReconciler) publishEvent(transactionID string, providerStatus domain.ProviderStatus, mapped domain.TransactionStatus) {
	if r.kafkaProducer == nil {
		return
	}
	event := kafka.NewPaymentEvent(kafka.EventTypeStatusChanged, transactionID, map[string]interface{}{
		"provider_status": string(providerStatus),
		"status":          string(mapped),
	})
	if err := r.kafkaProducer.PublishEvent(kafka.TopicPaymentEvents, transactionID, event); err != nil {
		r.logger.WithError(err).WithField("transaction_id", transactionID).
			Warn("failed to publish status change event to kafka")
	}
}

// statusMessage формирует сообщение о статусе; формулировки различают
// только что применённый переход и ранее известный статус.
func statusMessage(status domain.TransactionStatus, changed bool) string {
	switch status {
	case domain.TransactionStatusCompleted:
		if changed {
			return "Payment completed successfully"
		}
		return "Payment was already completed"
	case domain.TransactionStatusFailed:
		if changed {
			return "Payment failed"
		}
		return "Payment already failed"
	default:
		return "Payment is still pending confirmation"
	}
}

var _ StatusReconciler = (*statusReconciler)(nil)

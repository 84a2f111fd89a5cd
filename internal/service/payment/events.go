package payment

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/metrics"
)

// emitTransactionEvent кладёт событие жизненного цикла транзакции в outbox
// и timeline. Оба приёмника best-effort: ошибка записи логируется и не
// прерывает оркестрацию.
func emitTransactionEvent(
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
	m *metrics.PaymentMetrics,
	transactionID, eventType string,
	payload map[string]interface{},
) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["transaction_id"] = transactionID
	occurred := time.Now().UTC()
	payload["ts"] = occurred.Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).WithFields(log.Fields{
			"transaction_id": transactionID,
			"event":          eventType,
		}).Error("marshal event failed")
		return
	}

	if outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "transaction",
			AggregateID:   transactionID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := outbox.Enqueue(msg); err != nil {
			logger.WithError(err).WithFields(log.Fields{
				"transaction_id": transactionID,
				"event":          eventType,
			}).Error("enqueue event failed")
		} else if m != nil {
			m.RecordOutboxEvent()
		}
	}

	if timeline != nil {
		var reason string
		if r, ok := payload["reason"].(string); ok {
			reason = r
		}
		event := domain.TimelineEvent{
			TransactionID: transactionID,
			Type:          eventType,
			Reason:        reason,
			Occurred:      occurred,
		}
		if err := timeline.Append(event); err != nil {
			logger.WithError(err).WithFields(log.Fields{
				"transaction_id": transactionID,
				"event":          eventType,
			}).Warn("append timeline event failed")
		} else if m != nil {
			m.RecordTimelineEvent()
		}
	}
}

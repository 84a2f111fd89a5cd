package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType определяет тип события платёжного цикла.
type EventType string

const (
	// События обработки платежа
	EventTypePaymentStarted   EventType = "payment.started"
	EventTypePaymentCompleted EventType = "payment.completed"
	EventTypePaymentFailed    EventType = "payment.failed"
	EventTypePaymentPending   EventType = "payment.pending"

	// События сверки
	EventTypeStatusChanged   EventType = "payment.status_changed"
	EventTypeStockReconciled EventType = "stock.reconciled"
)

// Topics для Kafka
const (
	TopicPaymentEvents   = "checkout.payment.events"
	TopicDeadLetterQueue = "checkout.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// PaymentEvent представляет событие жизненного цикла платежа.
type PaymentEvent struct {
	EventType     EventType              `json:"event_type"`
	TransactionID string                 `json:"transaction_id"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ParsePaymentEvent разбирает тело сообщения из checkout.payment.events.
func ParsePaymentEvent(value []byte) (*PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("failed to parse payment event: %w", err)
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("payment event has no event_type")
	}
	return &event, nil
}

// NewPaymentEvent создаёт событие платёжного цикла.
func NewPaymentEvent(eventType EventType, transactionID string, metadata map[string]interface{}) *PaymentEvent {
	return &PaymentEvent{
		EventType:     eventType,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
		Metadata:      metadata,
	}
}

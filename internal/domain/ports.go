package domain

import (
	"context"
	"time"
)

// PaymentRequest — данные, отправляемые провайдеру при списании.
type PaymentRequest struct {
	TransactionID string
	// Reference — корреляционная строка для последующих запросов статуса.
	Reference string
	// AmountMinor — сумма в минимальных единицах провайдера.
	AmountMinor   int64
	Currency      string
	CustomerEmail string
	Card          Card
	CardBrand     CardBrand
	Installments  int
}

// PaymentResult — единый ответ провайдера на submit и запрос статуса.
type PaymentResult struct {
	Success               bool
	ProviderTransactionID string
	Reference             string
	Status                ProviderStatus
	Message               string
	ProcessedAt           time.Time
	AmountMinor           int64
	Currency              string
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
// Транспортные ошибки возвращаются как error; бизнес-исход (decline и т.п.)
// приходит внутри PaymentResult.
type PaymentGateway interface {
	// Submit отправляет платёж провайдеру. Вызывается не более одного раза
	// за обработку транзакции; автоматические повторы не выполняются.
	Submit(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	// QueryStatus запрашивает актуальный статус по идентификатору провайдера.
	QueryStatus(ctx context.Context, providerTransactionID string) (PaymentResult, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла транзакции.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(transactionID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

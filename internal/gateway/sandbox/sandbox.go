// Package sandbox реализует детерминированную симуляцию платёжного провайдера.
// Используется в локальной разработке и тестах вместо реального API.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

// Фиксированные тестовые карты. Исход определяется только номером карты,
// остальные поля запроса на него не влияют.
var defaultCardOutcomes = map[string]domain.ProviderStatus{
	"4242424242424242": domain.ProviderStatusApproved,
	"5555555555554444": domain.ProviderStatusApproved,
	"4000000000000002": domain.ProviderStatusDeclined,
	"2223003122003222": domain.ProviderStatusDeclined,
}

// Gateway — in-process симуляция PaymentGateway.
type Gateway struct {
	mu sync.Mutex
	// outcomes отображает номер карты на исход; карты вне таблицы одобряются.
	outcomes map[string]domain.ProviderStatus
	// submitted хранит результаты по provider id для последующих запросов статуса.
	submitted map[string]domain.PaymentResult
	seq       int64

	// SubmitErr и QueryErr позволяют инжектировать транспортные сбои в тестах.
	SubmitErr error
	QueryErr  error

	logger *log.Entry
}

// New создаёт sandbox-гейтвей со стандартным набором тестовых карт.
func New(logger *log.Entry) *Gateway {
	if logger == nil {
		logger = log.New().WithField("component", "sandbox-gateway")
	}
	outcomes := make(map[string]domain.ProviderStatus, len(defaultCardOutcomes))
	for card, status := range defaultCardOutcomes {
		outcomes[card] = status
	}
	return &Gateway{
		outcomes:  outcomes,
		submitted: make(map[string]domain.PaymentResult),
		logger:    logger,
	}
}

// SetCardOutcome настраивает исход для конкретного номера карты.
func (g *Gateway) SetCardOutcome(number string, status domain.ProviderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcomes[clean(number)] = status
}

// SetStatus переопределяет статус уже принятой операции — имитация
// асинхронного подтверждения карточной сети.
func (g *Gateway) SetStatus(providerTransactionID string, status domain.ProviderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	result, ok := g.submitted[providerTransactionID]
	if !ok {
		return
	}
	result.Status = status
	result.Success = status == domain.ProviderStatusApproved
	result.Message = statusMessage(status)
	g.submitted[providerTransactionID] = result
}

// Submit детерминированно обрабатывает платёж согласно таблице тестовых карт.
func (g *Gateway) Submit(_ context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	if g.SubmitErr != nil {
		return domain.PaymentResult{}, g.SubmitErr
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	status, ok := g.outcomes[clean(req.Card.Number)]
	if !ok {
		// Карты вне таблицы одобряются: удобное поведение по умолчанию для разработки.
		status = domain.ProviderStatusApproved
	}

	g.seq++
	result := domain.PaymentResult{
		Success:               status == domain.ProviderStatusApproved,
		ProviderTransactionID: fmt.Sprintf("wompi_%d", g.seq),
		Reference:             req.Reference,
		Status:                status,
		Message:               statusMessage(status),
		ProcessedAt:           time.Now().UTC(),
		AmountMinor:           req.AmountMinor,
		Currency:              req.Currency,
	}
	g.submitted[result.ProviderTransactionID] = result

	g.logger.WithFields(log.Fields{
		"provider_tx_id": result.ProviderTransactionID,
		"status":         result.Status,
	}).Debug("sandbox payment processed")

	return result, nil
}

// QueryStatus возвращает последний известный статус принятой операции.
func (g *Gateway) QueryStatus(_ context.Context, providerTransactionID string) (domain.PaymentResult, error) {
	if g.QueryErr != nil {
		return domain.PaymentResult{}, g.QueryErr
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	result, ok := g.submitted[providerTransactionID]
	if !ok {
		return domain.PaymentResult{}, fmt.Errorf("query status: unknown provider transaction %q", providerTransactionID)
	}
	return result, nil
}

func statusMessage(status domain.ProviderStatus) string {
	switch status {
	case domain.ProviderStatusApproved:
		return "Transaction approved"
	case domain.ProviderStatusDeclined:
		return "Transaction declined by issuer"
	case domain.ProviderStatusPending:
		return "Transaction pending confirmation"
	default:
		return "Transaction " + strings.ToLower(string(status))
	}
}

func clean(number string) string {
	cleaned := strings.ReplaceAll(number, " ", "")
	return strings.ReplaceAll(cleaned, "-", "")
}

var _ domain.PaymentGateway = (*Gateway)(nil)

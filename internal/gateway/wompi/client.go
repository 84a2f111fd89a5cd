// Package wompi содержит HTTP-адаптер к API платёжного провайдера.
package wompi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

const (
	defaultTimeout = 15 * time.Second

	transactionsPath = "/v1/transactions"
)

// Client — реализация PaymentGateway поверх HTTP API провайдера.
type Client struct {
	baseURL    string
	privateKey string
	httpClient *http.Client
	logger     *log.Entry
}

// NewClient создаёт клиент провайдера. Приватный ключ передаётся
// в заголовке Authorization каждого запроса.
func NewClient(baseURL, privateKey string, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "wompi-client")
	}
	return &Client{
		baseURL:    baseURL,
		privateKey: privateKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// submitPayload — тело запроса на создание транзакции у провайдера.
type submitPayload struct {
	Reference     string      `json:"reference"`
	AmountInCents int64       `json:"amount_in_cents"`
	Currency      string      `json:"currency"`
	CustomerEmail string      `json:"customer_email"`
	PaymentMethod cardPayload `json:"payment_method"`
}

type cardPayload struct {
	Type         string `json:"type"`
	Number       string `json:"number"`
	CVC          string `json:"cvc"`
	ExpMonth     string `json:"exp_month"`
	ExpYear      string `json:"exp_year"`
	CardHolder   string `json:"card_holder"`
	Brand        string `json:"brand"`
	Installments int    `json:"installments"`
}

// transactionEnvelope — ответ провайдера на создание и на запрос статуса.
type transactionEnvelope struct {
	Data struct {
		ID            string `json:"id"`
		Reference     string `json:"reference"`
		Status        string `json:"status"`
		StatusMessage string `json:"status_message"`
		AmountInCents int64  `json:"amount_in_cents"`
		Currency      string `json:"currency"`
		CreatedAt     string `json:"created_at"`
	} `json:"data"`
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// Submit отправляет платёж провайдеру. Любая транспортная ошибка или не-2xx
// ответ без тела транзакции трактуется как недоступность провайдера.
func (c *Client) Submit(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	payload := submitPayload{
		Reference:     req.Reference,
		AmountInCents: req.AmountMinor,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		PaymentMethod: cardPayload{
			Type:         "CARD",
			Number:       req.Card.Number,
			CVC:          req.Card.CVC,
			ExpMonth:     req.Card.ExpMonth,
			ExpYear:      req.Card.ExpYear,
			CardHolder:   req.Card.Holder,
			Brand:        string(req.CardBrand),
			Installments: req.Installments,
		},
	}

	var envelope transactionEnvelope
	if err := c.do(ctx, http.MethodPost, transactionsPath, payload, &envelope); err != nil {
		return domain.PaymentResult{}, err
	}

	return c.toResult(envelope), nil
}

// QueryStatus запрашивает актуальный статус по идентификатору провайдера.
func (c *Client) QueryStatus(ctx context.Context, providerTransactionID string) (domain.PaymentResult, error) {
	var envelope transactionEnvelope
	path := fmt.Sprintf("%s/%s", transactionsPath, providerTransactionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return domain.PaymentResult{}, err
	}

	return c.toResult(envelope), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.privateKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: provider responded %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}

	return nil
}

func (c *Client) toResult(envelope transactionEnvelope) domain.PaymentResult {
	status := domain.ProviderStatus(envelope.Data.Status)
	if envelope.Data.ID == "" && envelope.Error.Type != "" {
		// Провайдер вернул бизнес-ошибку без транзакции: считаем это отказом.
		c.logger.WithFields(log.Fields{
			"error_type": envelope.Error.Type,
			"reason":     envelope.Error.Reason,
		}).Warn("provider returned error payload")
		return domain.PaymentResult{
			Status:  domain.ProviderStatusError,
			Message: envelope.Error.Reason,
		}
	}

	processedAt, _ := time.Parse(time.RFC3339, envelope.Data.CreatedAt)

	return domain.PaymentResult{
		Success:               status == domain.ProviderStatusApproved,
		ProviderTransactionID: envelope.Data.ID,
		Reference:             envelope.Data.Reference,
		Status:                status,
		Message:               envelope.Data.StatusMessage,
		ProcessedAt:           processedAt,
		AmountMinor:           envelope.Data.AmountInCents,
		Currency:              envelope.Data.Currency,
	}
}

var _ domain.PaymentGateway = (*Client)(nil)

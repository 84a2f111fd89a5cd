package api

import (
	"time"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/service/payment"
)

// CreateTransactionRequest — тело запроса на создание checkout-транзакции.
// Цена и базовая комиссия берутся из каталога товара.
type CreateTransactionRequest struct {
	CustomerID       string `json:"customer_id"`
	ProductID        string `json:"product_id"`
	DeliveryFeeMinor int64  `json:"delivery_fee_minor,omitempty"`
	Currency         string `json:"currency,omitempty"`
}

// PaymentRequest — тело запроса на оплату транзакции.
type PaymentRequest struct {
	CardNumber   string `json:"card_number"`
	CVC          string `json:"cvc"`
	ExpMonth     string `json:"exp_month"`
	ExpYear      string `json:"exp_year"`
	CardHolder   string `json:"card_holder"`
	Installments int    `json:"installments,omitempty"`
}

// StockRequest — тело запроса на списание стока.
type StockRequest struct {
	Quantity int32 `json:"quantity,omitempty"`
}

// PaymentMethodResponse — маскированные данные способа оплаты.
type PaymentMethodResponse struct {
	Type     string `json:"type"`
	Brand    string `json:"brand"`
	LastFour string `json:"last_four"`
}

// TransactionResponse — каноническое представление транзакции в API.
type TransactionResponse struct {
	ID                    string                 `json:"id"`
	CustomerID            string                 `json:"customer_id"`
	ProductID             string                 `json:"product_id"`
	ProductAmountMinor    int64                  `json:"product_amount_minor"`
	BaseFeeMinor          int64                  `json:"base_fee_minor"`
	DeliveryFeeMinor      int64                  `json:"delivery_fee_minor"`
	TotalAmountMinor      int64                  `json:"total_amount_minor"`
	Currency              string                 `json:"currency"`
	Status                string                 `json:"status"`
	ProviderTransactionID string                 `json:"provider_transaction_id,omitempty"`
	ProviderReference     string                 `json:"provider_reference,omitempty"`
	PaymentMethod         *PaymentMethodResponse `json:"payment_method,omitempty"`
	CreatedAt             string                 `json:"created_at"`
	UpdatedAt             string                 `json:"updated_at"`
	CompletedAt           string                 `json:"completed_at,omitempty"`
}

// ProductResponse — представление товара.
type ProductResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Stock      int32  `json:"stock"`
	Active     bool   `json:"active"`
}

// PaymentResponse — ответ на запрос оплаты.
type PaymentResponse struct {
	Transaction     TransactionResponse `json:"transaction"`
	Product         ProductResponse     `json:"product"`
	PaymentSuccess  bool                `json:"payment_success"`
	Message         string              `json:"message"`
	RequiresPolling bool                `json:"requires_polling"`
}

// PaymentStatusResponse — блок статуса в ответе сверки.
type PaymentStatusResponse struct {
	CurrentStatus  string `json:"current_status"`
	ProviderStatus string `json:"provider_status,omitempty"`
	StatusChanged  bool   `json:"status_changed"`
	Message        string `json:"message"`
}

// StatusResponse — ответ на запрос статуса транзакции.
type StatusResponse struct {
	Transaction   TransactionResponse   `json:"transaction"`
	PaymentStatus PaymentStatusResponse `json:"payment_status"`
}

// TimelineEventResponse — событие жизненного цикла транзакции.
type TimelineEventResponse struct {
	Type     string `json:"type"`
	Reason   string `json:"reason,omitempty"`
	Occurred string `json:"occurred"`
}

// ErrorResponse — единый формат ошибок API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapTransaction(tx domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:                    tx.ID,
		CustomerID:            tx.CustomerID,
		ProductID:             tx.ProductID,
		ProductAmountMinor:    tx.ProductAmountMinor,
		BaseFeeMinor:          tx.BaseFeeMinor,
		DeliveryFeeMinor:      tx.DeliveryFeeMinor,
		TotalAmountMinor:      tx.TotalAmountMinor,
		Currency:              tx.Currency,
		Status:                string(tx.Status),
		ProviderTransactionID: tx.ProviderTransactionID,
		ProviderReference:     tx.ProviderReference,
		CreatedAt:             tx.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:             tx.UpdatedAt.Format(time.RFC3339Nano),
	}
	if tx.PaymentMethod != nil {
		resp.PaymentMethod = &PaymentMethodResponse{
			Type:     tx.PaymentMethod.Type,
			Brand:    string(tx.PaymentMethod.Brand),
			LastFour: tx.PaymentMethod.LastFour,
		}
	}
	if tx.CompletedAt != nil {
		resp.CompletedAt = tx.CompletedAt.Format(time.RFC3339Nano)
	}
	return resp
}

func mapProduct(product domain.Product) ProductResponse {
	return ProductResponse{
		ID:         product.ID,
		Name:       product.Name,
		PriceMinor: product.PriceMinor,
		Stock:      product.Stock,
		Active:     product.Active,
	}
}

func mapPaymentResult(result payment.ProcessResult) PaymentResponse {
	return PaymentResponse{
		Transaction:     mapTransaction(result.Transaction),
		Product:         mapProduct(result.Product),
		PaymentSuccess:  result.PaymentSuccess,
		Message:         result.Message,
		RequiresPolling: result.RequiresPolling,
	}
}

func mapStatusResult(result payment.StatusResult) StatusResponse {
	return StatusResponse{
		Transaction: mapTransaction(result.Transaction),
		PaymentStatus: PaymentStatusResponse{
			CurrentStatus:  string(result.Payment.CurrentStatus),
			ProviderStatus: string(result.Payment.ProviderStatus),
			StatusChanged:  result.Payment.StatusChanged,
			Message:        result.Payment.Message,
		},
	}
}

func mapTimeline(events []domain.TimelineEvent) []TimelineEventResponse {
	out := make([]TimelineEventResponse, len(events))
	for i, event := range events {
		out[i] = TimelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred.Format(time.RFC3339Nano),
		}
	}
	return out
}

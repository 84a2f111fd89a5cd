package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/service/payment"
)

// Handler обслуживает HTTP-операции платёжного цикла.
type Handler struct {
	creator    payment.Creator
	processor  payment.Processor
	reconciler payment.StatusReconciler
	stock      payment.StockReconciler
	timeline   domain.TimelineRepository
	logger     *log.Entry
}

// NewHandler создаёт HTTP handler платёжного API.
func NewHandler(
	creator payment.Creator,
	processor payment.Processor,
	reconciler payment.StatusReconciler,
	stock payment.StockReconciler,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		creator:    creator,
		processor:  processor,
		reconciler: reconciler,
		stock:      stock,
		timeline:   timeline,
		logger:     logger,
	}
}

// CreateTransaction создаёт новую pending-транзакцию.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	tx, err := h.creator.Create(r.Context(), payment.CreateInput{
		CustomerID:       req.CustomerID,
		ProductID:        req.ProductID,
		DeliveryFeeMinor: req.DeliveryFeeMinor,
		Currency:         req.Currency,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapTransaction(tx))
}

// ProcessPayment запускает оплату pending-транзакции.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "id")

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	input := payment.ProcessInput{
		TransactionID: transactionID,
		Card: domain.Card{
			Number:   req.CardNumber,
			CVC:      req.CVC,
			ExpMonth: req.ExpMonth,
			ExpYear:  req.ExpYear,
			Holder:   req.CardHolder,
		},
		Installments: req.Installments,
	}

	result, err := h.processor.Process(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapPaymentResult(result))
}

// GetStatus сверяет статус транзакции с провайдером. Если статус только что
// сменился на completed, здесь же запускается списание стока — политика
// вызывающего слоя поверх side-effect-minimal сверки.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "id")

	result, err := h.reconciler.Check(r.Context(), transactionID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if result.Payment.StatusChanged && result.Payment.CurrentStatus == domain.TransactionStatusCompleted && h.stock != nil {
		if _, stockErr := h.stock.Reconcile(r.Context(), transactionID, 1); stockErr != nil {
			h.logger.WithError(stockErr).WithField("transaction_id", transactionID).
				Warn("stock reconciliation after status change failed")
		}
	}

	writeJSON(w, http.StatusOK, mapStatusResult(result))
}

// ReconcileStock списывает сток по завершённой транзакции.
func (h *Handler) ReconcileStock(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "id")

	var req StockRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}

	product, err := h.stock.Reconcile(r.Context(), transactionID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapProduct(product))
}

// ListEvents возвращает timeline транзакции.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "id")
	if transactionID == "" {
		writeError(w, http.StatusBadRequest, "transaction_id_required", "")
		return
	}

	events, err := h.timeline.List(transactionID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapTimeline(events))
}

// writeDomainError отображает доменные ошибки на HTTP-статусы.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domain.IsBusinessRule(err):
		writeError(w, http.StatusUnprocessableEntity, "business_rule_violation", err.Error())
	case domain.IsVersionConflict(err):
		writeError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "gateway_unavailable", err.Error())
	default:
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("unhandled internal error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

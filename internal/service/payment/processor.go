package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/messaging/kafka"
	"github.com/afmurillo/checkout-payments/internal/metrics"
)

// allowedInstallments — допустимые значения рассрочки провайдера.
var allowedInstallments = map[int]struct{}{
	1: {}, 3: {}, 6: {}, 9: {}, 12: {}, 18: {}, 24: {}, 36: {},
}

// ProcessInput — входные данные запуска оплаты по существующей транзакции.
type ProcessInput struct {
	TransactionID string
	Card          domain.Card
	// Installments — количество платежей рассрочки; 0 означает «один платёж».
	Installments int
}

// ProcessResult — итог обработки платежа, возвращаемый вызывающему слою.
type ProcessResult struct {
	Transaction    domain.Transaction
	Product        domain.Product
	PaymentSuccess bool
	Message        string
	// RequiresPolling — провайдер оставил платёж в PENDING, статус нужно опрашивать.
	RequiresPolling bool
}

// StockReconciler списывает сток по завершённой транзакции.
// Реализуется пакетом stock; интерфейс здесь разрывает цикл импорта.
type StockReconciler interface {
	Reconcile(ctx context.Context, transactionID string, quantity int32) (domain.Product, error)
}

// Processor управляет полным циклом оплаты: валидация, вызов провайдера,
// применение статуса и best-effort списание стока.
type Processor interface {
	Process(ctx context.Context, input ProcessInput) (ProcessResult, error)
}

type processor struct {
	transactions  domain.TransactionRepository
	products      domain.ProductRepository
	customers     domain.CustomerRepository
	gateway       domain.PaymentGateway
	stock         StockReconciler
	outbox        domain.OutboxRepository
	timeline      domain.TimelineRepository
	logger        *log.Entry
	metrics       *metrics.PaymentMetrics
	kafkaProducer *kafka.Producer // опциональный Kafka producer для event-driven архитектуры
}

// NewProcessor создаёт рабочий экземпляр процессора платежей.
func NewProcessor(
	transactions domain.TransactionRepository,
	products domain.ProductRepository,
	customers domain.CustomerRepository,
	gateway domain.PaymentGateway,
	stock StockReconciler,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) Processor {
	if logger == nil {
		logger = log.New().WithField("component", "payment-processor")
	}
	return &processor{
		transactions: transactions,
		products:     products,
		customers:    customers,
		gateway:      gateway,
		stock:        stock,
		outbox:       outbox,
		timeline:     timeline,
		logger:       logger,
		metrics:      metrics.NewPaymentMetrics(),
	}
}

// NewProcessorWithKafka создаёт процессор с Kafka producer для публикации событий.
func NewProcessorWithKafka(
	transactions domain.TransactionRepository,
	products domain.ProductRepository,
	customers domain.CustomerRepository,
	gateway domain.PaymentGateway,
	stock StockReconciler,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) Processor {
	p := NewProcessor(transactions, products, customers, gateway, stock, outbox, timeline, logger).(*processor)
	p.kafkaProducer = kafkaProducer
	return p
}

// NewProcessorWithoutMetrics создаёт процессор без метрик (для тестов).
func NewProcessorWithoutMetrics(
	transactions domain.TransactionRepository,
	products domain.ProductRepository,
	customers domain.CustomerRepository,
	gateway domain.PaymentGateway,
	stock StockReconciler,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) Processor {
	p := NewProcessor(transactions, products, customers, gateway, stock, outbox, timeline, logger).(*processor)
	p.metrics = nil
	return p
}

// Process выполняет оплату транзакции. Ошибка валидации или бизнес-правила
// возвращается вызвавшему; отклонение провайдера ошибкой не считается и
// отражается в ProcessResult. Паника на любом шаге конвертируется в ошибку.
func (p *processor) Process(ctx context.Context, input ProcessInput) (result ProcessResult, err error) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.RecordPaymentStarted()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("transaction_id", input.TransactionID).
				WithField("panic", r).Error("payment processing panicked")
			err = fmt.Errorf("process payment failed: panic: %v", r)
		}
		if p.metrics != nil {
			p.metrics.RecordPaymentFinished()
			p.metrics.RecordProcessDuration(time.Since(start))
			if err != nil {
				p.metrics.RecordPaymentFailed()
			}
		}
	}()

	if err := validateProcessInput(input); err != nil {
		return ProcessResult{}, err
	}
	installments := input.Installments
	if installments == 0 {
		installments = 1
	}

	tx, product, customer, err := p.loadAggregates(input.TransactionID)
	if err != nil {
		return ProcessResult{}, err
	}

	logger := p.logger.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"product_id":     product.ID,
	})

	brand := domain.DetectCardBrand(input.Card.Number)
	request := domain.PaymentRequest{
		TransactionID: tx.ID,
		Reference:     paymentReference(tx),
		AmountMinor:   tx.TotalAmountMinor,
		Currency:      tx.Currency,
		CustomerEmail: domain.NormalizeEmail(customer.Email),
		Card:          input.Card,
		CardBrand:     brand,
		Installments:  installments,
	}

	p.publishEvent(kafka.EventTypePaymentStarted, tx.ID, map[string]interface{}{
		"amount":   tx.TotalAmountMinor,
		"currency": tx.Currency,
	})

	gatewayStart := time.Now()
	payment, gatewayErr := p.gateway.Submit(ctx, request)
	if p.metrics != nil {
		p.metrics.RecordGatewayDuration("submit", time.Since(gatewayStart))
	}
	if gatewayErr != nil {
		return ProcessResult{}, p.failAfterGatewayError(&tx, gatewayErr)
	}

	mapped := domain.MapProviderStatus(payment.Status)
	if err := p.applyPaymentOutcome(&tx, payment, brand, input.Card.Number, mapped); err != nil {
		return ProcessResult{}, err
	}

	switch mapped {
	case domain.TransactionStatusCompleted:
		logger.WithField("provider_tx_id", tx.ProviderTransactionID).Info("payment approved")
		if p.metrics != nil {
			p.metrics.RecordPaymentCompleted()
		}
		p.emitEvent(&tx, "PaymentCompleted", map[string]interface{}{
			"provider_tx_id": tx.ProviderTransactionID,
			"amount_minor":   tx.TotalAmountMinor,
		})
		p.publishEvent(kafka.EventTypePaymentCompleted, tx.ID, map[string]interface{}{
			"provider_tx_id": tx.ProviderTransactionID,
			"amount":         tx.TotalAmountMinor,
		})
		// Оплата авторитетна; списание стока best-effort и не влияет на исход.
		if updated, stockErr := p.stock.Reconcile(ctx, tx.ID, 1); stockErr != nil {
			logger.WithError(stockErr).Warn("stock reconciliation after approval failed")
		} else {
			product = updated
			// Reconciler обновил транзакцию в хранилище (признак StockApplied,
			// версия); перечитываем, чтобы вернуть вызывающему актуальное состояние.
			if fresh, loadErr := p.transactions.Get(tx.ID); loadErr != nil {
				logger.WithError(loadErr).Warn("failed to reload transaction after stock reconciliation")
			} else {
				tx = fresh
			}
		}
	case domain.TransactionStatusPending:
		logger.WithField("provider_tx_id", tx.ProviderTransactionID).Info("payment left pending by provider")
		if p.metrics != nil {
			p.metrics.RecordPaymentPending()
		}
		p.emitEvent(&tx, "PaymentPending", map[string]interface{}{
			"provider_tx_id": tx.ProviderTransactionID,
		})
		p.publishEvent(kafka.EventTypePaymentPending, tx.ID, map[string]interface{}{
			"provider_tx_id": tx.ProviderTransactionID,
		})
	default:
		logger.WithFields(log.Fields{
			"provider_status": payment.Status,
			"message":         payment.Message,
		}).Info("payment declined")
		if p.metrics != nil {
			p.metrics.RecordPaymentFailed()
		}
		p.emitEvent(&tx, "PaymentFailed", map[string]interface{}{
			"provider_status": string(payment.Status),
			"reason":          payment.Message,
		})
		p.publishEvent(kafka.EventTypePaymentFailed, tx.ID, map[string]interface{}{
			"provider_status": string(payment.Status),
			"reason":          payment.Message,
		})
	}

	return ProcessResult{
		Transaction:     tx,
		Product:         product,
		PaymentSuccess:  mapped == domain.TransactionStatusCompleted,
		Message:         resultMessage(mapped, payment.Message),
		RequiresPolling: mapped == domain.TransactionStatusPending,
	}, nil
}

// validateProcessInput проверяет форму входных данных до любых внешних вызовов.
func validateProcessInput(input ProcessInput) error {
	if input.TransactionID == "" {
		return domain.ErrTransactionIDRequired
	}
	if cardErrs := input.Card.Validate(); len(cardErrs) > 0 {
		return errors.Join(cardErrs...)
	}
	if input.Installments != 0 {
		if _, ok := allowedInstallments[input.Installments]; !ok {
			return domain.ErrInstallmentsInvalid
		}
	}
	return nil
}

// loadAggregates загружает транзакцию, товар и клиента и проверяет guard-условия.
func (p *processor) loadAggregates(transactionID string) (domain.Transaction, domain.Product, domain.Customer, error) {
	tx, err := p.transactions.Get(transactionID)
	if err != nil {
		return domain.Transaction{}, domain.Product{}, domain.Customer{}, err
	}
	if !tx.CanBeProcessed() {
		return domain.Transaction{}, domain.Product{}, domain.Customer{}, domain.ErrTransactionNotPending
	}
	if err := tx.ValidateAmount(); err != nil {
		return domain.Transaction{}, domain.Product{}, domain.Customer{}, err
	}

	product, err := p.products.Get(tx.ProductID)
	if err != nil {
		return domain.Transaction{}, domain.Product{}, domain.Customer{}, err
	}
	if !product.IsAvailable() {
		return domain.Transaction{}, domain.Product{}, domain.Customer{}, domain.ErrProductUnavailable
	}

	customer, err := p.customers.Get(tx.CustomerID)
	if err != nil {
		return domain.Transaction{}, domain.Product{}, domain.Customer{}, err
	}

	return tx, product, customer, nil
}

// failAfterGatewayError помечает транзакцию failed после транспортной ошибки
// провайдера. Пометка best-effort: если сохранение тоже упало, логируем и
// возвращаем исходную ошибку провайдера, не маскируя её.
func (p *processor) failAfterGatewayError(tx *domain.Transaction, gatewayErr error) error {
	wrapped := fmt.Errorf("submit payment failed: %w", gatewayErr)
	p.logger.WithError(gatewayErr).WithField("transaction_id", tx.ID).Error("payment gateway call failed")

	saveErr := p.saveTransaction(tx, func(t *domain.Transaction) error {
		return t.MarkFailed()
	})
	if saveErr != nil {
		p.logger.WithError(saveErr).WithField("transaction_id", tx.ID).
			Error("failed to persist compensating failed status")
	} else {
		p.emitEvent(tx, "PaymentFailed", map[string]interface{}{
			"reason": gatewayErr.Error(),
		})
	}
	if p.metrics != nil {
		p.metrics.RecordPaymentFailed()
	}
	return wrapped
}

// applyPaymentOutcome применяет отображённый статус провайдера к транзакции
// и сохраняет её. Идентификаторы провайдера записываются при любом исходе.
func (p *processor) applyPaymentOutcome(tx *domain.Transaction, payment domain.PaymentResult, brand domain.CardBrand, cardNumber string, mapped domain.TransactionStatus) error {
	return p.saveTransaction(tx, func(t *domain.Transaction) error {
		t.AttachProviderInfo(domain.PaymentMethod{
			Type:     "CARD",
			Brand:    brand,
			LastFour: domain.LastFour(cardNumber),
		})
		switch mapped {
		case domain.TransactionStatusCompleted:
			return t.MarkCompleted(payment.ProviderTransactionID, payment.Reference)
		case domain.TransactionStatusPending:
			t.MarkPending(payment.ProviderTransactionID, payment.Reference)
			return nil
		default:
			t.MarkPending(payment.ProviderTransactionID, payment.Reference)
			return t.MarkFailed()
		}
	})
}

// saveTransaction сохраняет транзакцию с retry при version conflict:
// перечитывает свежую версию, заново применяет apply и повторяет с backoff.
func (p *processor) saveTransaction(tx *domain.Transaction, apply func(*domain.Transaction) error) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := apply(tx); err != nil {
			return err
		}
		if err := p.transactions.Save(*tx); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				p.logger.WithFields(log.Fields{
					"transaction_id": tx.ID,
					"attempt":        attempt + 1,
					"version":        tx.Version,
				}).Warn("version conflict detected, retrying")

				fresh, loadErr := p.transactions.Get(tx.ID)
				if loadErr != nil {
					return loadErr
				}
				*tx = fresh

				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return fmt.Errorf("persist transaction failed: %w", err)
		}
		tx.Version++
		return nil
	}

	return domain.ErrTransactionVersionConflict
}

// emitEvent пишет событие в outbox и timeline. Ошибки логируются и не
// прерывают обработку платежа.
func (p *processor) emitEvent(tx *domain.Transaction, eventType string, payload map[string]interface{}) {
	emitTransactionEvent(p.outbox, p.timeline, p.logger, p.metrics, tx.ID, eventType, payload)
}

// publishEvent публикует событие платёжного цикла в Kafka (если producer настроен).
func (p *processor) publishEvent(eventType kafka.EventType, transactionID string, metadata map[string]interface{}) {
	if p.kafkaProducer == nil {
		return
	}
	event := kafka.NewPaymentEvent(eventType, transactionID, metadata)
	if err := p.kafkaProducer.PublishEvent(kafka.TopicPaymentEvents, transactionID, event); err != nil {
		// Kafka опциональна: ошибку логируем, обработку не прерываем.
		p.logger.WithError(err).WithFields(log.Fields{
			"event_type":     eventType,
			"transaction_id": transactionID,
		}).Warn("failed to publish payment event to kafka")
	}
}

// paymentReference возвращает корреляционную строку для провайдера.
// Повторная обработка переиспользует уже выданный reference.
func paymentReference(tx domain.Transaction) string {
	if tx.ProviderReference != "" {
		return tx.ProviderReference
	}
	return "ref_" + tx.ID
}

// resultMessage формирует сообщение для вызывающего по итоговому статусу.
func resultMessage(status domain.TransactionStatus, providerMessage string) string {
	switch status {
	case domain.TransactionStatusCompleted:
		return "Payment processed successfully"
	case domain.TransactionStatusPending:
		return "Payment is pending confirmation"
	default:
		if providerMessage != "" {
			return "Payment was declined: " + providerMessage
		}
		return "Payment was declined"
	}
}

var _ Processor = (*processor)(nil)

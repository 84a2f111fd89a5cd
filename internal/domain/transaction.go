package domain

import "time"

// TransactionStatus описывает жизненный цикл платёжной транзакции.
type TransactionStatus string

const (
	// TransactionStatusPending — транзакция создана на checkout, оплата ещё не подтверждена.
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusCompleted — провайдер подтвердил списание (терминальный статус).
	TransactionStatusCompleted TransactionStatus = "completed"
	// TransactionStatusFailed — провайдер отклонил оплату либо произошла ошибка (терминальный статус).
	TransactionStatusFailed TransactionStatus = "failed"
)

// PaymentMethod хранит метаданные способа оплаты, возвращённые провайдером.
type PaymentMethod struct {
	// Type — тип платёжного средства (сейчас всегда "CARD").
	Type string
	// Brand — бренд карты, определённый эвристикой по номеру.
	Brand CardBrand
	// LastFour — последние четыре цифры маскированного номера.
	LastFour string
}

// Transaction агрегирует состояние платёжной транзакции checkout.
// Сумма разбита на компоненты: цена товара, базовая комиссия и доставка.
type Transaction struct {
	ID         string
	CustomerID string
	ProductID  string

	ProductAmountMinor int64
	BaseFeeMinor       int64
	DeliveryFeeMinor   int64
	TotalAmountMinor   int64
	Currency           string

	Status TransactionStatus

	// ProviderTransactionID — идентификатор, выданный платёжным провайдером.
	ProviderTransactionID string
	// ProviderReference — корреляционная строка, отправленная провайдеру.
	ProviderReference string
	PaymentMethod     *PaymentMethod

	// StockApplied — признак того, что списание стока по этой транзакции уже выполнено.
	StockApplied bool

	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewTransaction создаёт новую pending-транзакцию и проверяет инварианты создания.
// Итоговая сумма вычисляется из компонентов, поэтому для новой транзакции
// проверка ValidateAmount выполняется по построению.
func NewTransaction(id, customerID, productID string, productAmountMinor, baseFeeMinor, deliveryFeeMinor int64, currency string) (Transaction, error) {
	switch {
	case id == "":
		return Transaction{}, ErrTransactionIDRequired
	case customerID == "":
		return Transaction{}, ErrCustomerIDRequired
	case productID == "":
		return Transaction{}, ErrProductIDRequired
	case currency == "":
		return Transaction{}, ErrCurrencyRequired
	case productAmountMinor < 0 || baseFeeMinor < 0 || deliveryFeeMinor < 0:
		return Transaction{}, ErrAmountNegative
	}

	now := time.Now().UTC()
	return Transaction{
		ID:                 id,
		CustomerID:         customerID,
		ProductID:          productID,
		ProductAmountMinor: productAmountMinor,
		BaseFeeMinor:       baseFeeMinor,
		DeliveryFeeMinor:   deliveryFeeMinor,
		TotalAmountMinor:   productAmountMinor + baseFeeMinor + deliveryFeeMinor,
		Currency:           currency,
		Status:             TransactionStatusPending,
		Version:            0,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// RehydrateTransaction восстанавливает транзакцию из хранилища без проверок
// бизнес-правил: данным, прошедшим через NewTransaction и репозиторий,
// доверяем. Временные метки приводятся к UTC, так как драйвер БД может
// вернуть их в таймзоне сессии.
func RehydrateTransaction(t Transaction) Transaction {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.CompletedAt != nil {
		completed := t.CompletedAt.UTC()
		t.CompletedAt = &completed
	}
	return t
}

// CanBeProcessed сообщает, можно ли запускать оплату по транзакции.
func (t *Transaction) CanBeProcessed() bool {
	return t.Status == TransactionStatusPending
}

// ValidateAmount сверяет итоговую сумму с компонентами. Суммы хранятся
// в минимальных денежных единицах, поэтому сравнение точное, без epsilon.
func (t *Transaction) ValidateAmount() error {
	if t.TotalAmountMinor != t.ProductAmountMinor+t.BaseFeeMinor+t.DeliveryFeeMinor {
		return ErrAmountMismatch
	}
	return nil
}

// MarkCompleted переводит транзакцию pending → completed и сохраняет
// идентификаторы провайдера. Вызов вне pending — ошибка бизнес-правила.
func (t *Transaction) MarkCompleted(providerTransactionID, providerReference string) error {
	if t.Status != TransactionStatusPending {
		return ErrTransactionNotPending
	}
	now := time.Now().UTC()
	t.Status = TransactionStatusCompleted
	if providerTransactionID != "" {
		t.ProviderTransactionID = providerTransactionID
	}
	if providerReference != "" {
		t.ProviderReference = providerReference
	}
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// MarkFailed переводит транзакцию pending → failed.
func (t *Transaction) MarkFailed() error {
	if t.Status != TransactionStatusPending {
		return ErrTransactionNotPending
	}
	t.Status = TransactionStatusFailed
	t.CompletedAt = nil
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkPending фиксирует идентификаторы провайдера, не меняя статус.
// Используется, когда провайдер сам вернул PENDING (асинхронные карточные сети),
// чтобы последующий reconcile мог найти транзакцию по provider id.
func (t *Transaction) MarkPending(providerTransactionID, providerReference string) {
	if providerTransactionID != "" {
		t.ProviderTransactionID = providerTransactionID
	}
	if providerReference != "" {
		t.ProviderReference = providerReference
	}
	t.UpdatedAt = time.Now().UTC()
}

// AttachProviderInfo обновляет метаданные способа оплаты без смены статуса.
func (t *Transaction) AttachProviderInfo(method PaymentMethod) {
	t.PaymentMethod = &method
	t.UpdatedAt = time.Now().UTC()
}

// MarkStockApplied ставит признак выполненного списания стока.
func (t *Transaction) MarkStockApplied() {
	t.StockApplied = true
	t.UpdatedAt = time.Now().UTC()
}

// ClearStockApplied снимает признак списания. Используется для отката
// захваченного признака, когда само списание не состоялось.
func (t *Transaction) ClearStockApplied() {
	t.StockApplied = false
	t.UpdatedAt = time.Now().UTC()
}

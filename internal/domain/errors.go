package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора транзакции.
	ErrTransactionIDRequired = errors.New("transaction_id is required")
	// Ошибка отсутствующего номера карты.
	ErrCardNumberRequired = errors.New("card number is required")
	// Ошибка отсутствующего CVC кода.
	ErrCardCVCRequired = errors.New("card cvc is required")
	// Ошибка отсутствующего срока действия карты.
	ErrCardExpirationRequired = errors.New("card expiration is required")
	// Ошибка отсутствующего имени держателя карты.
	ErrCardHolderRequired = errors.New("card holder is required")
	// Ошибка недопустимого количества платежей в рассрочку.
	ErrInstallmentsInvalid = errors.New("installments must be one of 1, 3, 6, 9, 12, 18, 24, 36")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// Ошибка отрицательной денежной компоненты транзакции.
	ErrAmountNegative = errors.New("amount components must be non-negative")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerIDRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")

	// ErrTransactionNotFound возвращается, если транзакция не найдена в репозитории.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrTransactionNotPending — транзакция вне статуса pending, оплату запускать нельзя.
	ErrTransactionNotPending = errors.New("transaction cannot be processed")
	// ErrTransactionNotCompleted — списание стока запрещено для незавершённой продажи.
	ErrTransactionNotCompleted = errors.New("transaction is not completed")
	// ErrAmountMismatch — сумма транзакции не сходится с компонентами.
	ErrAmountMismatch = errors.New("transaction total does not match amount components")
	// ErrProductUnavailable — товар неактивен или закончился на складе.
	ErrProductUnavailable = errors.New("product is not available")
	// ErrProductInactive — товар снят с продажи.
	ErrProductInactive = errors.New("product is inactive")
	// ErrInsufficientStock — запрошенное количество превышает остаток.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrTransactionVersionConflict сигнализирует о конфликте версий при сохранении транзакции.
	ErrTransactionVersionConflict = errors.New("transaction version conflict")
	// ErrProductVersionConflict сигнализирует о конфликте версий при сохранении товара.
	ErrProductVersionConflict = errors.New("product version conflict")
	// ErrGatewayUnavailable — платёжный провайдер недоступен (транспортная ошибка).
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

var validationErrors = []error{
	ErrTransactionIDRequired,
	ErrCardNumberRequired,
	ErrCardCVCRequired,
	ErrCardExpirationRequired,
	ErrCardHolderRequired,
	ErrInstallmentsInvalid,
	ErrQuantityInvalid,
	ErrAmountNegative,
	ErrCurrencyRequired,
	ErrCustomerIDRequired,
	ErrProductIDRequired,
}

var notFoundErrors = []error{
	ErrTransactionNotFound,
	ErrProductNotFound,
	ErrCustomerNotFound,
}

var businessErrors = []error{
	ErrTransactionNotPending,
	ErrTransactionNotCompleted,
	ErrAmountMismatch,
	ErrProductUnavailable,
	ErrProductInactive,
	ErrInsufficientStock,
}

// IsValidation проверяет, относится ли ошибка к ошибкам валидации входных данных.
func IsValidation(err error) bool {
	return matchesAny(err, validationErrors)
}

// IsNotFound проверяет, что сущность отсутствует в хранилище.
func IsNotFound(err error) bool {
	return matchesAny(err, notFoundErrors)
}

// IsBusinessRule проверяет, что нарушено бизнес-правило (не инфраструктурный сбой).
func IsBusinessRule(err error) bool {
	return matchesAny(err, businessErrors)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий optimistic locking.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrTransactionVersionConflict) || errors.Is(err, ErrProductVersionConflict)
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

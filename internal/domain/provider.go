package domain

// ProviderStatus — «сырой» статус операции на стороне платёжного провайдера.
type ProviderStatus string

const (
	ProviderStatusApproved  ProviderStatus = "APPROVED"
	ProviderStatusDeclined  ProviderStatus = "DECLINED"
	ProviderStatusPending   ProviderStatus = "PENDING"
	ProviderStatusError     ProviderStatus = "ERROR"
	ProviderStatusVoided    ProviderStatus = "VOIDED"
	ProviderStatusFailed    ProviderStatus = "FAILED"
	ProviderStatusCancelled ProviderStatus = "CANCELLED"
)

// MapProviderStatus отображает статус провайдера на доменный статус транзакции.
// Функция тотальна: любое нераспознанное значение трактуется как failed,
// чтобы неизвестный ответ провайдера никогда не превратился в успех.
func MapProviderStatus(status ProviderStatus) TransactionStatus {
	switch status {
	case ProviderStatusApproved:
		return TransactionStatusCompleted
	case ProviderStatusPending:
		return TransactionStatusPending
	case ProviderStatusDeclined, ProviderStatusError, ProviderStatusVoided,
		ProviderStatusFailed, ProviderStatusCancelled:
		return TransactionStatusFailed
	default:
		return TransactionStatusFailed
	}
}

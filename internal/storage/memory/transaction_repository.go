package memory

import (
	"sort"
	"sync"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

// transactionRepositoryInMemory — простая in-memory реализация TransactionRepository.
type transactionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Transaction
}

// NewTransactionRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewTransactionRepository() domain.TransactionRepository {
	return &transactionRepositoryInMemory{
		items: make(map[string]domain.Transaction),
	}
}

// Create сохраняет новую транзакцию, если ID ещё не занят.
func (r *transactionRepositoryInMemory) Create(tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[tx.ID]; exists {
		return domain.ErrTransactionVersionConflict
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[tx.ID] = cloneTransaction(tx)
	return nil
}

// Get возвращает транзакцию или ErrTransactionNotFound, если её нет.
func (r *transactionRepositoryInMemory) Get(id string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.items[id]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return domain.RehydrateTransaction(cloneTransaction(tx)), nil
}

// ListPendingWithProvider возвращает pending-транзакции с установленным provider id.
func (r *transactionRepositoryInMemory) ListPendingWithProvider(limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Transaction, 0)
	for _, tx := range r.items {
		if tx.Status != domain.TransactionStatusPending || tx.ProviderTransactionID == "" {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает транзакцию, проверяя версию (optimistic locking).
func (r *transactionRepositoryInMemory) Save(tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[tx.ID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if current.Version != tx.Version {
		return domain.ErrTransactionVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	tx.Version++
	r.items[tx.ID] = cloneTransaction(tx)
	return nil
}

func cloneTransaction(tx domain.Transaction) domain.Transaction {
	clone := tx
	if tx.PaymentMethod != nil {
		method := *tx.PaymentMethod
		clone.PaymentMethod = &method
	}
	if tx.CompletedAt != nil {
		completed := *tx.CompletedAt
		clone.CompletedAt = &completed
	}
	return clone
}

var _ domain.TransactionRepository = (*transactionRepositoryInMemory)(nil)

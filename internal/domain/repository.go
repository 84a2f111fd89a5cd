package domain

// TransactionRepository описывает требования к хранилищу транзакций.
type TransactionRepository interface {
	// Create сохраняет новую транзакцию. Возвращает ошибку, если запись с таким ID уже существует.
	Create(tx Transaction) error
	// Get возвращает транзакцию по идентификатору или ErrTransactionNotFound, если её нет.
	Get(id string) (Transaction, error)
	// ListPendingWithProvider возвращает pending-транзакции, уже отправленные провайдеру.
	// Используется фоновым поллером статусов.
	ListPendingWithProvider(limit int) ([]Transaction, error)
	// Save применяет обновления к транзакции с учётом optimistic locking.
	Save(tx Transaction) error
}

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Create сохраняет новый товар.
	Create(product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(id string) (Product, error)
	// Save применяет обновления к товару с учётом optimistic locking.
	Save(product Product) error
}

// CustomerRepository описывает требования к хранилищу клиентов (read-mostly).
type CustomerRepository interface {
	// Create сохраняет нового клиента (используется сидированием и тестами).
	Create(customer Customer) error
	// Get возвращает клиента по идентификатору или ErrCustomerNotFound.
	Get(id string) (Customer, error)
}

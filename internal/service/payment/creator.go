package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

// CreateInput — параметры создания checkout-транзакции.
type CreateInput struct {
	CustomerID       string
	ProductID        string
	DeliveryFeeMinor int64
	// Currency по умолчанию COP.
	Currency string
}

// Creator создаёт pending-транзакции, готовые к оплате.
type Creator interface {
	Create(ctx context.Context, input CreateInput) (domain.Transaction, error)
}

type creator struct {
	transactions domain.TransactionRepository
	products     domain.ProductRepository
	customers    domain.CustomerRepository
	logger       *log.Entry
}

// NewCreator создаёт сервис создания транзакций.
func NewCreator(
	transactions domain.TransactionRepository,
	products domain.ProductRepository,
	customers domain.CustomerRepository,
	logger *log.Entry,
) Creator {
	if logger == nil {
		logger = log.WithField("component", "transaction-creator")
	}
	return &creator{
		transactions: transactions,
		products:     products,
		customers:    customers,
		logger:       logger,
	}
}

// Create валидирует входные данные, подтягивает цену и комиссию из каталога
// и сохраняет новую pending-транзакцию.
func (c *creator) Create(ctx context.Context, input CreateInput) (tx domain.Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("create transaction failed: panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}
	if input.CustomerID == "" {
		return domain.Transaction{}, domain.ErrCustomerIDRequired
	}
	if input.ProductID == "" {
		return domain.Transaction{}, domain.ErrProductIDRequired
	}
	if input.DeliveryFeeMinor < 0 {
		return domain.Transaction{}, domain.ErrAmountNegative
	}
	if input.Currency == "" {
		input.Currency = "COP"
	}

	product, err := c.products.Get(input.ProductID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !product.IsAvailable() {
		return domain.Transaction{}, domain.ErrProductUnavailable
	}

	if _, err := c.customers.Get(input.CustomerID); err != nil {
		return domain.Transaction{}, err
	}

	tx, err = domain.NewTransaction(
		"tx_"+uuid.NewString(),
		input.CustomerID,
		input.ProductID,
		product.PriceMinor,
		product.BaseFeeMinor,
		input.DeliveryFeeMinor,
		input.Currency,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := c.transactions.Create(tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("persist transaction: %w", err)
	}

	c.logger.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"product_id":     tx.ProductID,
		"total_minor":    tx.TotalAmountMinor,
	}).Info("transaction created")

	return tx, nil
}

var _ Creator = (*creator)(nil)

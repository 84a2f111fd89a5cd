package integration

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/gateway/sandbox"
	"github.com/afmurillo/checkout-payments/internal/service/payment"
	"github.com/afmurillo/checkout-payments/internal/service/poller"
	"github.com/afmurillo/checkout-payments/internal/service/stock"
	"github.com/afmurillo/checkout-payments/internal/storage/memory"
)

// PaymentLifecycleTestSuite гоняет полный платёжный цикл на memory-хранилище
// и sandbox-провайдере.
type PaymentLifecycleTestSuite struct {
	suite.Suite
	transactions domain.TransactionRepository
	products     domain.ProductRepository
	customers    domain.CustomerRepository
	timeline     domain.TimelineRepository
	gateway      *sandbox.Gateway
	processor    payment.Processor
	reconciler   payment.StatusReconciler
	stock        *stock.Reconciler
}

func (s *PaymentLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.transactions = memory.NewTransactionRepository()
	s.products = memory.NewProductRepository()
	s.customers = memory.NewCustomerRepository()
	s.timeline = memory.NewTimelineRepository()
	outbox := memory.NewOutboxRepository()
	s.gateway = sandbox.New(logger)

	s.stock = stock.NewReconciler(s.transactions, s.products, outbox, s.timeline, logger,
		stock.WithoutMetrics())
	s.processor = payment.NewProcessorWithoutMetrics(
		s.transactions, s.products, s.customers, s.gateway, s.stock, outbox, s.timeline, logger)
	s.reconciler = payment.NewStatusReconcilerWithoutMetrics(
		s.transactions, s.gateway, outbox, s.timeline, logger)

	now := time.Now().UTC()
	require.NoError(s.T(), s.products.Create(domain.Product{
		ID: "product-1", Name: "Keyboard", PriceMinor: 5000000, Stock: 3, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(s.T(), s.customers.Create(domain.Customer{
		ID: "customer-1", Email: "jane@example.com", CreatedAt: now,
	}))
}

func (s *PaymentLifecycleTestSuite) newPendingTransaction(id string) domain.Transaction {
	tx, err := domain.NewTransaction(id, "customer-1", "product-1", 5000000, 150000, 100000, "COP")
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.transactions.Create(tx))
	return tx
}

func (s *PaymentLifecycleTestSuite) processCard(txID, cardNumber string) payment.ProcessResult {
	result, err := s.processor.Process(context.Background(), payment.ProcessInput{
		TransactionID: txID,
		Card: domain.Card{
			Number:   cardNumber,
			CVC:      "123",
			ExpMonth: "12",
			ExpYear:  "29",
			Holder:   "JANE DOE",
		},
	})
	require.NoError(s.T(), err)
	return result
}

func (s *PaymentLifecycleTestSuite) TestApprovedPaymentAppliesStockOnce() {
	s.newPendingTransaction("tx-1")

	result := s.processCard("tx-1", "4242424242424242")

	require.True(s.T(), result.PaymentSuccess)
	require.Equal(s.T(), domain.TransactionStatusCompleted, result.Transaction.Status)
	require.True(s.T(), result.Transaction.StockApplied)

	product, err := s.products.Get("product-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), int32(2), product.Stock)

	// Повторное списание по той же транзакции ничего не меняет.
	_, err = s.stock.Reconcile(context.Background(), "tx-1", 1)
	require.NoError(s.T(), err)

	product, err = s.products.Get("product-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), int32(2), product.Stock)

	events, err := s.timeline.List("tx-1")
	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), events)
}

func (s *PaymentLifecycleTestSuite) TestDeclinedPaymentLeavesStockUntouched() {
	s.newPendingTransaction("tx-2")

	result := s.processCard("tx-2", "4000000000000002")

	require.False(s.T(), result.PaymentSuccess)
	require.Equal(s.T(), domain.TransactionStatusFailed, result.Transaction.Status)

	product, err := s.products.Get("product-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), int32(3), product.Stock)

	// Оплата по failed-транзакции больше невозможна.
	_, err = s.processor.Process(context.Background(), payment.ProcessInput{
		TransactionID: "tx-2",
		Card: domain.Card{
			Number: "4242424242424242", CVC: "123", ExpMonth: "12", ExpYear: "29", Holder: "JANE DOE",
		},
	})
	require.ErrorIs(s.T(), err, domain.ErrTransactionNotPending)
}

func (s *PaymentLifecycleTestSuite) TestPendingPaymentConfirmedByPoller() {
	s.newPendingTransaction("tx-3")
	s.gateway.SetCardOutcome("4242424242424242", domain.ProviderStatusPending)

	result := s.processCard("tx-3", "4242424242424242")
	require.False(s.T(), result.PaymentSuccess)
	require.True(s.T(), result.RequiresPolling)
	require.Equal(s.T(), domain.TransactionStatusPending, result.Transaction.Status)
	require.NotEmpty(s.T(), result.Transaction.ProviderTransactionID)

	// Пока провайдер держит pending, поллер ничего не меняет.
	p := poller.New(s.transactions, s.reconciler, s.stock)
	p.SweepOnce(context.Background())

	tx, err := s.transactions.Get("tx-3")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.TransactionStatusPending, tx.Status)

	// Провайдер подтвердил оплату — поллер завершает транзакцию и списывает сток.
	s.gateway.SetStatus(result.Transaction.ProviderTransactionID, domain.ProviderStatusApproved)
	p.SweepOnce(context.Background())

	tx, err = s.transactions.Get("tx-3")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.TransactionStatusCompleted, tx.Status)
	require.True(s.T(), tx.StockApplied)

	product, err := s.products.Get("product-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), int32(2), product.Stock)

	// Дополнительный проход идемпотентен.
	p.SweepOnce(context.Background())
	product, err = s.products.Get("product-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), int32(2), product.Stock)
}

func (s *PaymentLifecycleTestSuite) TestPendingPaymentDeclinedLater() {
	s.newPendingTransaction("tx-4")
	s.gateway.SetCardOutcome("5555555555554444", domain.ProviderStatusPending)

	result := s.processCard("tx-4", "5555555555554444")
	require.True(s.T(), result.RequiresPolling)

	s.gateway.SetStatus(result.Transaction.ProviderTransactionID, domain.ProviderStatusDeclined)

	status, err := s.reconciler.Check(context.Background(), "tx-4")
	require.NoError(s.T(), err)
	require.True(s.T(), status.Payment.StatusChanged)
	require.Equal(s.T(), domain.TransactionStatusFailed, status.Payment.CurrentStatus)

	product, err := s.products.Get("product-1")
	require.NoError(s.T(), err)
	require.Equal(s.T(), int32(3), product.Stock)
}

func TestPaymentLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentLifecycleTestSuite))
}

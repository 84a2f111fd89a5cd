package poller

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/gateway/sandbox"
	"github.com/afmurillo/checkout-payments/internal/service/payment"
	"github.com/afmurillo/checkout-payments/internal/service/stock"
	"github.com/afmurillo/checkout-payments/internal/storage/memory"
)

func seedPendingSubmitted(t *testing.T, transactions domain.TransactionRepository, products domain.ProductRepository, customers domain.CustomerRepository, gateway *sandbox.Gateway) string {
	t.Helper()

	now := time.Now().UTC()
	if err := products.Create(domain.Product{
		ID: "product-1", Name: "Keyboard", PriceMinor: 5000000, Stock: 5, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := customers.Create(domain.Customer{ID: "customer-1", Email: "jane@example.com", CreatedAt: now}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	tx, err := domain.NewTransaction("tx-1", "customer-1", "product-1", 5000000, 0, 0, "COP")
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if err := transactions.Create(tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	gateway.SetCardOutcome("4242424242424242", domain.ProviderStatusPending)
	proc := payment.NewProcessorWithoutMetrics(transactions, products, customers, gateway, nil, nil, nil, nil)
	result, err := proc.Process(context.Background(), payment.ProcessInput{
		TransactionID: "tx-1",
		Card: domain.Card{
			Number: "4242424242424242", CVC: "123", ExpMonth: "12", ExpYear: "29", Holder: "JANE DOE",
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.RequiresPolling {
		t.Fatal("expected pending payment requiring polling")
	}
	return result.Transaction.ProviderTransactionID
}

func TestPoller_ConfirmsPendingAndAppliesStock(t *testing.T) {
	transactions := memory.NewTransactionRepository()
	products := memory.NewProductRepository()
	customers := memory.NewCustomerRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	gateway := sandbox.New(log.New().WithField("test", "poller"))

	providerTxID := seedPendingSubmitted(t, transactions, products, customers, gateway)
	gateway.SetStatus(providerTxID, domain.ProviderStatusApproved)

	reconciler := payment.NewStatusReconcilerWithoutMetrics(transactions, gateway, outbox, timeline, nil)
	stockRec := stock.NewReconciler(transactions, products, outbox, timeline, nil, stock.WithoutMetrics())
	p := New(transactions, reconciler, stockRec, WithBatchSize(10), WithParallelism(2))

	p.SweepOnce(context.Background())

	tx, err := transactions.Get("tx-1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx.Status != domain.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", tx.Status)
	}
	if !tx.StockApplied {
		t.Fatal("stock applied flag must be set after confirmation")
	}

	product, err := products.Get("product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 4 {
		t.Fatalf("expected stock 4, got %d", product.Stock)
	}

	// Второй проход: статус уже терминальный, транзакция выпала из выборки.
	p.SweepOnce(context.Background())
	product, err = products.Get("product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 4 {
		t.Fatalf("stock must not change on a repeated sweep, got %d", product.Stock)
	}
}

func TestPoller_LeavesStillPendingUntouched(t *testing.T) {
	transactions := memory.NewTransactionRepository()
	products := memory.NewProductRepository()
	customers := memory.NewCustomerRepository()
	gateway := sandbox.New(log.New().WithField("test", "poller_pending"))

	seedPendingSubmitted(t, transactions, products, customers, gateway)

	reconciler := payment.NewStatusReconcilerWithoutMetrics(transactions, gateway, nil, nil, nil)
	p := New(transactions, reconciler, nil)

	p.SweepOnce(context.Background())

	tx, err := transactions.Get("tx-1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx.Status != domain.TransactionStatusPending {
		t.Fatalf("expected still pending, got %s", tx.Status)
	}

	product, err := products.Get("product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 5 {
		t.Fatalf("stock must be untouched, got %d", product.Stock)
	}
}

func TestPoller_Run_StopsOnContextCancel(t *testing.T) {
	transactions := memory.NewTransactionRepository()
	gateway := sandbox.New(nil)
	reconciler := payment.NewStatusReconcilerWithoutMetrics(transactions, gateway, nil, nil, nil)

	p := New(transactions, reconciler, nil, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("poller did not stop on context cancel")
	}
}

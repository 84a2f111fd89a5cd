package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/gateway/sandbox"
	"github.com/afmurillo/checkout-payments/internal/service/payment"
	"github.com/afmurillo/checkout-payments/internal/service/stock"
	"github.com/afmurillo/checkout-payments/internal/storage/memory"
)

type testEnv struct {
	router       http.Handler
	gateway      *sandbox.Gateway
	transactions domain.TransactionRepository
	products     domain.ProductRepository
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	transactions := memory.NewTransactionRepository()
	products := memory.NewProductRepository()
	customers := memory.NewCustomerRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	idempotency := memory.NewIdempotencyRepository()
	gateway := sandbox.New(log.New().WithField("test", "api"))

	stockRec := stock.NewReconciler(transactions, products, outbox, timeline, nil, stock.WithoutMetrics())
	creator := payment.NewCreator(transactions, products, customers, nil)
	processor := payment.NewProcessorWithoutMetrics(transactions, products, customers, gateway, stockRec, outbox, timeline, nil)
	reconciler := payment.NewStatusReconcilerWithoutMetrics(transactions, gateway, outbox, timeline, nil)

	handler := NewHandler(creator, processor, reconciler, stockRec, timeline, nil)
	router := NewRouter(RouterOptions{
		Handler:     handler,
		Idempotency: idempotency,
	})

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
	tx, err := domain.NewTransaction("tx-1", "customer-1", "product-1", 5000000, 150000, 100000, "COP")
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if err := transactions.Create(tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	return testEnv{
		router:       router,
		gateway:      gateway,
		transactions: transactions,
		products:     products,
	}
}

func paymentBody(t *testing.T, cardNumber string) *bytes.Reader {
	t.Helper()

	body, err := json.Marshal(PaymentRequest{
		CardNumber: cardNumber,
		CVC:        "123",
		ExpMonth:   "12",
		ExpYear:    "29",
		CardHolder: "JANE DOE",
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewReader(body)
}

func doRequest(t *testing.T, router http.Handler, method, path string, body *bytes.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateTransaction(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(CreateTransactionRequest{
		CustomerID:       "customer-1",
		ProductID:        "product-1",
		DeliveryFeeMinor: 100000,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions", bytes.NewReader(body), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp TransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending" {
		t.Fatalf("expected pending, got %s", resp.Status)
	}
	if resp.Currency != "COP" {
		t.Fatalf("expected default COP currency, got %s", resp.Currency)
	}

	// Созданная транзакция сразу готова к оплате.
	pay := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/"+resp.ID+"/payment",
		paymentBody(t, "4242424242424242"), nil)
	if pay.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", pay.Code, pay.Body.String())
	}

	// Неизвестный товар — 404.
	body, _ = json.Marshal(CreateTransactionRequest{CustomerID: "customer-1", ProductID: "nope"})
	rec = doRequest(t, env.router, http.MethodPost, "/api/v1/transactions", bytes.NewReader(body), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestProcessPayment_Approved(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "4242424242424242"), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.PaymentSuccess {
		t.Fatal("expected payment success")
	}
	if resp.Transaction.Status != "completed" {
		t.Fatalf("expected completed, got %s", resp.Transaction.Status)
	}
	if resp.Product.Stock != 4 {
		t.Fatalf("expected stock 4, got %d", resp.Product.Stock)
	}
	if resp.Message != "Payment processed successfully" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestProcessPayment_Declined(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "4000000000000002"), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PaymentSuccess {
		t.Fatal("declined payment must not succeed")
	}
	if resp.Transaction.Status != "failed" {
		t.Fatalf("expected failed, got %s", resp.Transaction.Status)
	}
	if resp.Product.Stock != 5 {
		t.Fatalf("stock must be untouched, got %d", resp.Product.Stock)
	}
}

func TestProcessPayment_ValidationAndDomainErrors(t *testing.T) {
	env := newTestEnv(t)

	// Отсутствующие поля карты — 400.
	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		bytes.NewReader([]byte(`{}`)), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	// Неизвестная транзакция — 404.
	rec = doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/nope/payment",
		paymentBody(t, "4242424242424242"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// Повторная оплата завершённой транзакции — 422.
	rec = doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "4242424242424242"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on first attempt, got %d", rec.Code)
	}
	rec = doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "4242424242424242"), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error != "business_rule_violation" {
		t.Fatalf("unexpected error code: %s", errResp.Error)
	}
}

func TestGetStatus_AppliesStockPolicy(t *testing.T) {
	env := newTestEnv(t)

	env.gateway.SetCardOutcome("4242424242424242", domain.ProviderStatusPending)
	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "4242424242424242"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payResp PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payResp.RequiresPolling {
		t.Fatal("expected pending payment requiring polling")
	}

	env.gateway.SetStatus(payResp.Transaction.ProviderTransactionID, domain.ProviderStatusApproved)

	rec = doRequest(t, env.router, http.MethodGet, "/api/v1/transactions/tx-1/status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var statusResp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &statusResp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !statusResp.PaymentStatus.StatusChanged {
		t.Fatal("expected status change")
	}
	if statusResp.PaymentStatus.CurrentStatus != "completed" {
		t.Fatalf("expected completed, got %s", statusResp.PaymentStatus.CurrentStatus)
	}

	product, err := env.products.Get("product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 4 {
		t.Fatalf("expected stock 4 after policy, got %d", product.Stock)
	}
}

func TestReconcileStock_RequiresCompleted(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/stock",
		bytes.NewReader([]byte(`{"quantity":1}`)), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	product, err := env.products.Get("product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 5 {
		t.Fatalf("product must be untouched, got %d", product.Stock)
	}
}

func TestListEvents_ReturnsTimeline(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "4242424242424242"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, env.router, http.MethodGet, "/api/v1/transactions/tx-1/events", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var events []TimelineEventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one timeline event")
	}
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	env := newTestEnv(t)

	headers := map[string]string{IdempotencyKeyHeader: "key-1"}

	first := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "4242424242424242"), headers)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}

	second := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "4242424242424242"), headers)
	if second.Code != http.StatusOK {
		t.Fatalf("expected replayed 200, got %d: %s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("expected replay marker header")
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatal("replayed body must match the original response")
	}

	// Ключ переиспользован с другим телом запроса — конфликт.
	conflict := doRequest(t, env.router, http.MethodPost, "/api/v1/transactions/tx-1/payment",
		paymentBody(t, "5555555555554444"), headers)
	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", conflict.Code)
	}

	// Сток списан ровно один раз.
	product, err := env.products.Get("product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 4 {
		t.Fatalf("expected a single decrement, got stock %d", product.Stock)
	}
}

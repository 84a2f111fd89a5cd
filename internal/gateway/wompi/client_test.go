package wompi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

func testRequest() domain.PaymentRequest {
	return domain.PaymentRequest{
		TransactionID: "tx-1",
		Reference:     "ref_123",
		AmountMinor:   108000,
		Currency:      "COP",
		CustomerEmail: "buyer@example.com",
		Card:          domain.Card{Number: "4242424242424242", CVC: "123", ExpMonth: "12", ExpYear: "29", Holder: "JOHN DOE"},
		CardBrand:     domain.CardBrandVisa,
		Installments:  1,
	}
}

func TestClient_Submit_Approved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transactions" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer prv_test_key" {
			t.Fatalf("unexpected authorization header: %q", got)
		}

		var payload submitPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.AmountInCents != 108000 || payload.Reference != "ref_123" {
			t.Fatalf("unexpected payload: %+v", payload)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"wompi_123","reference":"ref_123","status":"APPROVED","status_message":"Approved","amount_in_cents":108000,"currency":"COP","created_at":"2026-08-29T12:00:00Z"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "prv_test_key", nil)
	result, err := client.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if result.ProviderTransactionID != "wompi_123" {
		t.Fatalf("unexpected provider id: %q", result.ProviderTransactionID)
	}
	if result.Status != domain.ProviderStatusApproved || !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClient_QueryStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transactions/wompi_123" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"wompi_123","reference":"ref_123","status":"PENDING","amount_in_cents":108000,"currency":"COP"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "prv_test_key", nil)
	result, err := client.QueryStatus(context.Background(), "wompi_123")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Status != domain.ProviderStatusPending || result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "prv_test_key", nil)
	_, err := client.Submit(context.Background(), testRequest())
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestClient_TransportError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "prv_test_key", nil)
	_, err := client.Submit(context.Background(), testRequest())
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestClient_ErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"type":"INPUT_VALIDATION_ERROR","reason":"invalid card"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "prv_test_key", nil)
	result, err := client.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Status != domain.ProviderStatusError {
		t.Fatalf("expected ERROR status, got %s", result.Status)
	}
}

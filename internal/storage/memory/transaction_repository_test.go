package memory

import (
	"errors"
	"testing"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

func newTx(t *testing.T, id string) domain.Transaction {
	t.Helper()
	tx, err := domain.NewTransaction(id, "cust-1", "prod-1", 100000, 5000, 3000, "COP")
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	return tx
}

func TestTransactionRepository_CreateAndGet(t *testing.T) {
	repo := NewTransactionRepository()
	tx := newTx(t, "tx-1")

	if err := repo.Create(tx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(tx); !errors.Is(err, domain.ErrTransactionVersionConflict) {
		t.Fatalf("duplicate create: expected conflict, got %v", err)
	}

	got, err := repo.Get("tx-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalAmountMinor != 108000 {
		t.Fatalf("unexpected total: %d", got.TotalAmountMinor)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestTransactionRepository_SaveVersionConflict(t *testing.T) {
	repo := NewTransactionRepository()
	tx := newTx(t, "tx-1")
	if err := repo.Create(tx); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := repo.Get("tx-1")
	second, _ := repo.Get("tx-1")

	if err := repo.Save(first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := repo.Save(second); !errors.Is(err, domain.ErrTransactionVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	// После перечитывания сохранение проходит.
	fresh, _ := repo.Get("tx-1")
	if fresh.Version != 1 {
		t.Fatalf("expected version 1, got %d", fresh.Version)
	}
	if err := repo.Save(fresh); err != nil {
		t.Fatalf("save after reload: %v", err)
	}
}

func TestTransactionRepository_ListPendingWithProvider(t *testing.T) {
	repo := NewTransactionRepository()

	plain := newTx(t, "tx-plain")
	if err := repo.Create(plain); err != nil {
		t.Fatalf("create: %v", err)
	}

	submitted := newTx(t, "tx-submitted")
	submitted.MarkPending("wompi_1", "ref_1")
	if err := repo.Create(submitted); err != nil {
		t.Fatalf("create: %v", err)
	}

	completed := newTx(t, "tx-completed")
	if err := completed.MarkCompleted("wompi_2", "ref_2"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := repo.Create(completed); err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := repo.ListPendingWithProvider(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "tx-submitted" {
		t.Fatalf("expected only tx-submitted, got %+v", pending)
	}
}

func TestTransactionRepository_GetReturnsCopy(t *testing.T) {
	repo := NewTransactionRepository()
	tx := newTx(t, "tx-1")
	tx.AttachProviderInfo(domain.PaymentMethod{Type: "CARD", Brand: domain.CardBrandVisa, LastFour: "4242"})
	if err := repo.Create(tx); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := repo.Get("tx-1")
	got.PaymentMethod.LastFour = "0000"

	again, _ := repo.Get("tx-1")
	if again.PaymentMethod.LastFour != "4242" {
		t.Fatalf("stored record mutated through returned copy: %q", again.PaymentMethod.LastFour)
	}
}

package memory

import (
	"errors"
	"testing"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

func TestProductRepository_Lifecycle(t *testing.T) {
	repo := NewProductRepository()
	product := domain.Product{ID: "prod-1", Name: "Keyboard", PriceMinor: 100000, Stock: 5, Active: true}

	if err := repo.Create(product); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Get("prod-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	reduced, err := got.ReduceStock(2)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if err := repo.Save(reduced); err != nil {
		t.Fatalf("save: %v", err)
	}

	fresh, _ := repo.Get("prod-1")
	if fresh.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", fresh.Stock)
	}
	if fresh.Version != 1 {
		t.Fatalf("expected version 1, got %d", fresh.Version)
	}
}

func TestProductRepository_SaveVersionConflict(t *testing.T) {
	repo := NewProductRepository()
	if err := repo.Create(domain.Product{ID: "prod-1", Stock: 5, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := repo.Get("prod-1")
	second, _ := repo.Get("prod-1")

	if err := repo.Save(first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := repo.Save(second); !errors.Is(err, domain.ErrProductVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestProductRepository_NotFound(t *testing.T) {
	repo := NewProductRepository()
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if err := repo.Save(domain.Product{ID: "missing"}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

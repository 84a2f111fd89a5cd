package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
	"github.com/afmurillo/checkout-payments/internal/gateway/sandbox"
	"github.com/afmurillo/checkout-payments/internal/gateway/wompi"
	"github.com/afmurillo/checkout-payments/internal/storage/memory"
	"github.com/afmurillo/checkout-payments/internal/storage/postgres"
)

// Dependencies содержит репозитории и внешние клиенты сервиса.
type Dependencies struct {
	Transactions domain.TransactionRepository
	Products     domain.ProductRepository
	Customers    domain.CustomerRepository
	Outbox       domain.OutboxRepository
	Timeline     domain.TimelineRepository
	Idempotency  domain.IdempotencyRepository
	Gateway      domain.PaymentGateway

	// Store не nil только для postgres-драйвера.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies собирает зависимости по конфигурации.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		deps.Transactions = memory.NewTransactionRepository()
		deps.Products = memory.NewProductRepository()
		deps.Customers = memory.NewCustomerRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()

		if cfg.SeedDemoData {
			if err := seedDemoData(deps); err != nil {
				return nil, fmt.Errorf("seed demo data: %w", err)
			}
			logger.Info("memory storage seeded with demo data")
		}

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires CHECKOUT_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}

		deps.Store = store
		deps.Transactions = postgres.NewTransactionRepository(store)
		deps.Products = postgres.NewProductRepository(store)
		deps.Customers = postgres.NewCustomerRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.GatewayBaseURL != "" {
		deps.Gateway = wompi.NewClient(cfg.GatewayBaseURL, cfg.GatewayPrivateKey,
			logger.WithField("component", "wompi-client"))
		logger.WithField("base_url", cfg.GatewayBaseURL).Info("using wompi payment gateway")
	} else {
		deps.Gateway = sandbox.New(logger.WithField("component", "sandbox-gateway"))
		logger.Info("using sandbox payment gateway")
	}

	return deps, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}

// seedDemoData наполняет memory-хранилище данными для локальных прогонов:
// товар, клиент и пара pending-транзакций, готовых к оплате.
func seedDemoData(deps *Dependencies) error {
	now := time.Now().UTC()

	if err := deps.Products.Create(domain.Product{
		ID:           "product-1",
		Name:         "Mechanical Keyboard",
		Description:  "Hot-swappable 75% board",
		PriceMinor:   5000000,
		BaseFeeMinor: 150000,
		Stock:        10,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return err
	}

	if err := deps.Customers.Create(domain.Customer{
		ID:        "customer-1",
		Name:      "Jane Doe",
		Email:     "jane.doe@example.com",
		Phone:     "+573001112233",
		CreatedAt: now,
	}); err != nil {
		return err
	}

	for _, id := range []string{"tx-1001", "tx-1002"} {
		tx, err := domain.NewTransaction(id, "customer-1", "product-1", 5000000, 150000, 100000, "COP")
		if err != nil {
			return err
		}
		if err := deps.Transactions.Create(tx); err != nil {
			return err
		}
	}

	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository создаёт PostgreSQL-реализацию TransactionRepository.
func NewTransactionRepository(store *Store) domain.TransactionRepository {
	return &transactionRepository{db: store.DB()}
}

const transactionColumns = `
	id, customer_id, product_id,
	product_amount_minor, base_fee_minor, delivery_fee_minor, total_amount_minor,
	currency, status, provider_transaction_id, provider_reference,
	payment_method_type, payment_method_brand, payment_method_last_four,
	stock_applied, version, created_at, updated_at, completed_at`

func (r *transactionRepository) Create(tx domain.Transaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		methodType, methodBrand, methodLastFour sql.NullString
	)
	if tx.PaymentMethod != nil {
		methodType = sql.NullString{String: tx.PaymentMethod.Type, Valid: true}
		methodBrand = sql.NullString{String: string(tx.PaymentMethod.Brand), Valid: true}
		methodLastFour = sql.NullString{String: tx.PaymentMethod.LastFour, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		tx.ID, tx.CustomerID, tx.ProductID,
		tx.ProductAmountMinor, tx.BaseFeeMinor, tx.DeliveryFeeMinor, tx.TotalAmountMinor,
		tx.Currency, string(tx.Status), tx.ProviderTransactionID, tx.ProviderReference,
		methodType, methodBrand, methodLastFour,
		tx.StockApplied, tx.Version, tx.CreatedAt, tx.UpdatedAt, tx.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTransactionVersionConflict
		}
		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

func (r *transactionRepository) Get(id string) (domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, fmt.Errorf("select transaction: %w", err)
	}

	return tx, nil
}

func (r *transactionRepository) ListPendingWithProvider(limit int) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'pending' AND provider_transaction_id <> ''
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return result, nil
}

func (r *transactionRepository) Save(tx domain.Transaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var methodType, methodBrand, methodLastFour sql.NullString
	if tx.PaymentMethod != nil {
		methodType = sql.NullString{String: tx.PaymentMethod.Type, Valid: true}
		methodBrand = sql.NullString{String: string(tx.PaymentMethod.Brand), Valid: true}
		methodLastFour = sql.NullString{String: tx.PaymentMethod.LastFour, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1,
		    provider_transaction_id = $2,
		    provider_reference = $3,
		    payment_method_type = $4,
		    payment_method_brand = $5,
		    payment_method_last_four = $6,
		    stock_applied = $7,
		    version = version + 1,
		    updated_at = $8,
		    completed_at = $9
		WHERE id = $10
		  AND version = $11
	`,
		string(tx.Status), tx.ProviderTransactionID, tx.ProviderReference,
		methodType, methodBrand, methodLastFour,
		tx.StockApplied, tx.UpdatedAt, tx.CompletedAt,
		tx.ID, tx.Version,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, tx.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrTransactionNotFound
		}
		return domain.ErrTransactionVersionConflict
	}

	return nil
}

func (r *transactionRepository) exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM transactions WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check transaction exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx                                      domain.Transaction
		status                                  string
		methodType, methodBrand, methodLastFour sql.NullString
		completedAt                             sql.NullTime
	)

	err := row.Scan(
		&tx.ID, &tx.CustomerID, &tx.ProductID,
		&tx.ProductAmountMinor, &tx.BaseFeeMinor, &tx.DeliveryFeeMinor, &tx.TotalAmountMinor,
		&tx.Currency, &status, &tx.ProviderTransactionID, &tx.ProviderReference,
		&methodType, &methodBrand, &methodLastFour,
		&tx.StockApplied, &tx.Version, &tx.CreatedAt, &tx.UpdatedAt, &completedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx.Status = domain.TransactionStatus(status)
	if methodType.Valid {
		tx.PaymentMethod = &domain.PaymentMethod{
			Type:     methodType.String,
			Brand:    domain.CardBrand(methodBrand.String),
			LastFour: methodLastFour.String,
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		tx.CompletedAt = &t
	}

	return domain.RehydrateTransaction(tx), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.TransactionRepository = (*transactionRepository)(nil)

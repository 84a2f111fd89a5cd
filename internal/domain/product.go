package domain

import "time"

// Product описывает товар каталога, участвующий в checkout.
type Product struct {
	ID           string
	Name         string
	Description  string
	PriceMinor   int64
	BaseFeeMinor int64
	Stock        int32
	Active       bool
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAvailable сообщает, можно ли продавать товар: он активен и сток положительный.
func (p Product) IsAvailable() bool {
	return p.Active && p.Stock > 0
}

// ReduceStock возвращает копию товара с уменьшенным остатком.
// Исходное значение не мутируется; количество сверх остатка — ошибка.
func (p Product) ReduceStock(qty int32) (Product, error) {
	if qty <= 0 {
		return p, ErrQuantityInvalid
	}
	if qty > p.Stock {
		return p, ErrInsufficientStock
	}

	reduced := p
	reduced.Stock -= qty
	reduced.UpdatedAt = time.Now().UTC()
	return reduced, nil
}

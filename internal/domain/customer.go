package domain

import (
	"strings"
	"time"
)

// Customer — покупатель; в этом сервисе данные клиента только читаются,
// создание происходит выше по потоку (на этапе checkout).
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// NormalizeEmail приводит email к канонической форме для отправки провайдеру.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package domain

import "strings"

// CardBrand — бренд платёжной карты.
type CardBrand string

const (
	CardBrandVisa       CardBrand = "VISA"
	CardBrandMastercard CardBrand = "MASTERCARD"
)

// Card содержит сырые поля карты, полученные от клиента.
// Номер карты не сохраняется: после вызова провайдера остаются только
// маскированные последние четыре цифры.
type Card struct {
	Number   string
	CVC      string
	ExpMonth string
	ExpYear  string
	Holder   string
}

// Validate проверяет заполненность обязательных полей карты и возвращает список замечаний.
func (c Card) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.Number) == "" {
		errs = append(errs, ErrCardNumberRequired)
	}
	if strings.TrimSpace(c.CVC) == "" {
		errs = append(errs, ErrCardCVCRequired)
	}
	if strings.TrimSpace(c.ExpMonth) == "" || strings.TrimSpace(c.ExpYear) == "" {
		errs = append(errs, ErrCardExpirationRequired)
	}
	if strings.TrimSpace(c.Holder) == "" {
		errs = append(errs, ErrCardHolderRequired)
	}

	return errs
}

// DetectCardBrand определяет бренд по первой цифре номера.
// Это эвристика для симуляции, а не настоящая BIN-валидация.
func DetectCardBrand(number string) CardBrand {
	cleaned := cleanCardNumber(number)
	if strings.HasPrefix(cleaned, "4") {
		return CardBrandVisa
	}
	return CardBrandMastercard
}

// LastFour возвращает последние четыре цифры номера карты.
func LastFour(number string) string {
	cleaned := cleanCardNumber(number)
	if len(cleaned) < 4 {
		return cleaned
	}
	return cleaned[len(cleaned)-4:]
}

// MaskCardNumber скрывает номер карты, оставляя последние четыре цифры.
func MaskCardNumber(number string) string {
	cleaned := cleanCardNumber(number)
	if len(cleaned) <= 4 {
		return cleaned
	}
	return strings.Repeat("*", len(cleaned)-4) + cleaned[len(cleaned)-4:]
}

func cleanCardNumber(number string) string {
	cleaned := strings.ReplaceAll(number, " ", "")
	return strings.ReplaceAll(cleaned, "-", "")
}

package domain

import (
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err          error
		validation   bool
		notFound     bool
		businessRule bool
	}{
		{ErrCardNumberRequired, true, false, false},
		{ErrInstallmentsInvalid, true, false, false},
		{ErrTransactionNotFound, false, true, false},
		{ErrProductNotFound, false, true, false},
		{ErrTransactionNotPending, false, false, true},
		{ErrInsufficientStock, false, false, true},
		{ErrAmountMismatch, false, false, true},
		{ErrGatewayUnavailable, false, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			if got := IsValidation(tc.err); got != tc.validation {
				t.Fatalf("IsValidation = %v, want %v", got, tc.validation)
			}
			if got := IsNotFound(tc.err); got != tc.notFound {
				t.Fatalf("IsNotFound = %v, want %v", got, tc.notFound)
			}
			if got := IsBusinessRule(tc.err); got != tc.businessRule {
				t.Fatalf("IsBusinessRule = %v, want %v", got, tc.businessRule)
			}
		})
	}
}

// Классификация должна работать и для обёрнутых ошибок.
func TestErrorKinds_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("load transaction failed: %w", ErrTransactionNotFound)
	if !IsNotFound(wrapped) {
		t.Fatal("wrapped not-found error must be detected")
	}

	conflict := fmt.Errorf("save failed: %w", ErrProductVersionConflict)
	if !IsVersionConflict(conflict) {
		t.Fatal("wrapped version conflict must be detected")
	}
}

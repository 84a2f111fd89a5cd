package domain

import "testing"

func TestMapProviderStatus_Table(t *testing.T) {
	cases := []struct {
		provider ProviderStatus
		want     TransactionStatus
	}{
		{ProviderStatusApproved, TransactionStatusCompleted},
		{ProviderStatusDeclined, TransactionStatusFailed},
		{ProviderStatusError, TransactionStatusFailed},
		{ProviderStatusVoided, TransactionStatusFailed},
		{ProviderStatusPending, TransactionStatusPending},
		{ProviderStatusFailed, TransactionStatusFailed},
		{ProviderStatusCancelled, TransactionStatusFailed},
	}

	for _, tc := range cases {
		t.Run(string(tc.provider), func(t *testing.T) {
			if got := MapProviderStatus(tc.provider); got != tc.want {
				t.Fatalf("MapProviderStatus(%s) = %s, want %s", tc.provider, got, tc.want)
			}
		})
	}
}

// Любое нераспознанное значение отображается в failed и никогда в успех.
func TestMapProviderStatus_Unknown(t *testing.T) {
	for _, raw := range []ProviderStatus{"", "UNKNOWN", "approved", "OK", "TIMEOUT"} {
		got := MapProviderStatus(raw)
		if got != TransactionStatusFailed {
			t.Fatalf("MapProviderStatus(%q) = %s, want failed", raw, got)
		}
	}
}

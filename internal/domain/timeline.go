package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле платёжной транзакции.
type TimelineEvent struct {
	TransactionID string
	Type          string
	Reason        string
	Occurred      time.Time
}

package domain

import "time"

// ReminderDelivery records one hand-off of a due follow-up to the dialer.
type ReminderDelivery struct {
	ID            string
	CallID        int64
	AttemptNumber int
	StatusCode    *int
	ResponseBody  *string
	Error         *string
	CreatedAt     time.Time
}

func (d ReminderDelivery) Succeeded() bool {
	return d.Error == nil
}

package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailure PaymentStatus = "FAILURE"
)

// Payment is one immutable record per deposit attempt. RequestReference is
// the idempotency key sent to the card provider; it is stable for a logical
// attempt so a retried deposit cannot pay twice.
type Payment struct {
	ID                string
	ClaimID           string
	PaymentCycleID    string
	CardAccountID     string
	AmountInPence     int
	Status            PaymentStatus
	RequestReference  string
	ProviderReference string
	FailureDetail     string
	Timestamp         time.Time
}

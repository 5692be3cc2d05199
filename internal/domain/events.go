package domain

import "time"

// ClaimReportedEvent is published to the reporting topic on every claim
// lifecycle transition.
type ClaimReportedEvent struct {
	ClaimID           string    `json:"claim_id"`
	Action            string    `json:"action"`
	ClaimStatus       string    `json:"claim_status"`
	EligibilityStatus string    `json:"eligibility_status"`
	Timestamp         time.Time `json:"timestamp"`
}

// PaymentReportedEvent is published to the reporting topic for every payment
// attempt, including zero-amount "balance too high" outcomes.
type PaymentReportedEvent struct {
	ClaimID        string    `json:"claim_id"`
	PaymentCycleID string    `json:"payment_cycle_id"`
	PaymentID      string    `json:"payment_id,omitempty"`
	Action         string    `json:"action"`
	AmountInPence  int       `json:"amount_in_pence"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

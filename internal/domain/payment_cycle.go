package domain

import "time"

type PaymentCycleStatus string

const (
	PaymentCycleStatusNew                PaymentCycleStatus = "NEW"
	PaymentCycleStatusReadyForPayment    PaymentCycleStatus = "READY_FOR_PAYMENT"
	PaymentCycleStatusFullPaymentMade    PaymentCycleStatus = "FULL_PAYMENT_MADE"
	PaymentCycleStatusPartialPaymentMade PaymentCycleStatus = "PARTIAL_PAYMENT_MADE"
	PaymentCycleStatusBalanceTooHigh     PaymentCycleStatus = "BALANCE_TOO_HIGH"
	PaymentCycleStatusIneligible         PaymentCycleStatus = "INELIGIBLE"
	PaymentCycleStatusFailed             PaymentCycleStatus = "FAILED"
)

// PaymentCycle is one 4-week period of a claim. The Version field implements
// optimistic concurrency: updates carry the version they read, and a losing
// writer gets ErrVersionConflict instead of overwriting.
type PaymentCycle struct {
	ID                            string
	ClaimID                       string
	StartDate                     time.Time
	EndDate                       time.Time
	EligibilityStatus             EligibilityStatus
	ExpectedDeliveryDate          *time.Time
	ChildrenDatesOfBirth          []time.Time
	Entitlement                   *CycleEntitlement
	TotalEntitlementAmountInPence int
	CardBalanceInPence            int
	CardBalanceTimestamp          *time.Time
	PaymentStatus                 PaymentCycleStatus
	Version                       int64
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

// HasChildrenOrPregnancy reports whether the cycle's snapshot shows anything
// that keeps the claim entitled: a child still under four at asOf or an
// unexpired pregnancy. A child turning four exactly on asOf has aged out.
func (c *PaymentCycle) HasChildrenOrPregnancy(pregnancyGracePeriod time.Duration, asOf time.Time) bool {
	for _, dob := range c.ChildrenDatesOfBirth {
		if !dob.After(asOf) && dob.AddDate(4, 0, 0).After(asOf) {
			return true
		}
	}
	if c.ExpectedDeliveryDate == nil {
		return false
	}
	return !asOf.After(c.ExpectedDeliveryDate.Add(pregnancyGracePeriod))
}

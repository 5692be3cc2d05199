package payment

// Result is the outcome of a payment calculation.
type Result struct {
	AmountInPence int
	// BalanceTooHigh is raised when the card already holds the maximum
	// allowed balance. It is an expected outcome, not an error.
	BalanceTooHigh bool
}

// Calculator decides the payable amount for a cycle given its total voucher
// value and the card's current balance. With entitlement T and multiple N:
// balance below T*N gets the full T, balance in [T*N, T*2N) gets the tapered
// top-up to T*2N, and balance at or above T*2N gets nothing.
type Calculator struct {
	balanceMultiple int
}

func NewCalculator(balanceMultiple int) *Calculator {
	return &Calculator{balanceMultiple: balanceMultiple}
}

func (c *Calculator) Calculate(entitlementAmountInPence, cardBalanceInPence int) Result {
	lower := entitlementAmountInPence * c.balanceMultiple
	upper := lower * 2

	switch {
	case cardBalanceInPence >= upper:
		return Result{AmountInPence: 0, BalanceTooHigh: true}
	case cardBalanceInPence >= lower:
		return Result{AmountInPence: upper - cardBalanceInPence}
	default:
		return Result{AmountInPence: entitlementAmountInPence}
	}
}

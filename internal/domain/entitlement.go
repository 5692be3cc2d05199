package domain

import "time"

// VoucherEntitlement is the entitlement for a single week of a payment cycle.
// It is stored as an immutable snapshot so later formula or threshold changes
// never rewrite history.
type VoucherEntitlement struct {
	Date                      time.Time `json:"date"`
	PregnancyVouchers         int       `json:"pregnancy_vouchers"`
	UnderOneVouchers          int       `json:"under_one_vouchers"`
	OneToFourVouchers         int       `json:"one_to_four_vouchers"`
	SingleVoucherValueInPence int       `json:"single_voucher_value_in_pence"`
}

func (e VoucherEntitlement) TotalVoucherCount() int {
	return e.PregnancyVouchers + e.UnderOneVouchers + e.OneToFourVouchers
}

func (e VoucherEntitlement) TotalVoucherValueInPence() int {
	return e.TotalVoucherCount() * e.SingleVoucherValueInPence
}

// CycleEntitlement composes the weekly entitlements of one payment cycle plus
// any vouchers backdated from the previous cycle.
type CycleEntitlement struct {
	WeeklyEntitlements []VoucherEntitlement `json:"weekly_entitlements"`
	BackdatedVouchers  int                  `json:"backdated_vouchers"`
}

func (c CycleEntitlement) TotalVoucherCount() int {
	total := c.BackdatedVouchers
	for _, w := range c.WeeklyEntitlements {
		total += w.TotalVoucherCount()
	}
	return total
}

func (c CycleEntitlement) TotalVoucherValueInPence() int {
	if len(c.WeeklyEntitlements) == 0 {
		return 0
	}
	return c.TotalVoucherCount() * c.WeeklyEntitlements[0].SingleVoucherValueInPence
}

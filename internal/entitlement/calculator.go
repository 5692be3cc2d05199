package entitlement

import (
	"time"

	"claims/internal/domain"
)

type Config struct {
	SingleVoucherValueInPence int
	VouchersPerChildUnderOne  int
	VouchersPerChildOneToFour int
	VouchersPerPregnancy      int
	PregnancyGracePeriodWeeks int
	WeeksPerCycle             int
}

// Calculator computes per-week voucher entitlements from pregnancy and
// children's dates of birth. It is pure: all inputs arrive as arguments and
// results never depend on the wall clock.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// CalculateWeek returns the entitlement for the week starting at asOf.
// A child turning one or four exactly on asOf has already left the younger
// band that day. Pregnancy entitlement runs until the configured number of
// weeks after the expected delivery date, inclusive.
func (c *Calculator) CalculateWeek(expectedDeliveryDate *time.Time, childrenDatesOfBirth []time.Time, asOf time.Time) domain.VoucherEntitlement {
	e := domain.VoucherEntitlement{
		Date:                      asOf,
		SingleVoucherValueInPence: c.cfg.SingleVoucherValueInPence,
	}

	for _, dob := range childrenDatesOfBirth {
		if dob.After(asOf) {
			continue
		}
		firstBirthday := dob.AddDate(1, 0, 0)
		fourthBirthday := dob.AddDate(4, 0, 0)
		switch {
		case firstBirthday.After(asOf):
			e.UnderOneVouchers += c.cfg.VouchersPerChildUnderOne
		case fourthBirthday.After(asOf):
			e.OneToFourVouchers += c.cfg.VouchersPerChildOneToFour
		}
	}

	if c.pregnantAt(expectedDeliveryDate, asOf) {
		e.PregnancyVouchers = c.cfg.VouchersPerPregnancy
	}

	return e
}

func (c *Calculator) pregnantAt(expectedDeliveryDate *time.Time, asOf time.Time) bool {
	if expectedDeliveryDate == nil {
		return false
	}
	cutoff := expectedDeliveryDate.AddDate(0, 0, 7*c.cfg.PregnancyGracePeriodWeeks)
	return !asOf.After(cutoff)
}

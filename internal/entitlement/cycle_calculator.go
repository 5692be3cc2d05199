package entitlement

import (
	"time"

	"claims/internal/domain"
)

// CalculateNewCycle builds the entitlement for the first cycle of a new
// claim: the entitlement is computed once at the cycle start and replicated
// across the cycle's weeks, with no backdating.
func (c *Calculator) CalculateNewCycle(expectedDeliveryDate *time.Time, childrenDatesOfBirth []time.Time, cycleStart time.Time) domain.CycleEntitlement {
	base := c.CalculateWeek(expectedDeliveryDate, childrenDatesOfBirth, cycleStart)

	weeks := make([]domain.VoucherEntitlement, c.cfg.WeeksPerCycle)
	for i := range weeks {
		week := base
		week.Date = cycleStart.AddDate(0, 0, 7*i)
		weeks[i] = week
	}
	return domain.CycleEntitlement{WeeklyEntitlements: weeks}
}

// CalculateRenewedCycle builds the entitlement for the next cycle of an
// existing claim. Each week is computed individually so a child crossing an
// age threshold changes the count only from that week onward. The previous
// cycle's stored entitlement is then compared against what it would have been
// given the data known now; any shortfall is granted as backdated vouchers.
//
// Backdating is monotonic (a week is never reduced below what was already
// granted) and idempotent: the same (previous, current) pair always yields
// the same result.
func (c *Calculator) CalculateRenewedCycle(expectedDeliveryDate *time.Time, childrenDatesOfBirth []time.Time, cycleStart time.Time, previous domain.CycleEntitlement) domain.CycleEntitlement {
	weeks := make([]domain.VoucherEntitlement, c.cfg.WeeksPerCycle)
	for i := range weeks {
		weeks[i] = c.CalculateWeek(expectedDeliveryDate, childrenDatesOfBirth, cycleStart.AddDate(0, 0, 7*i))
	}

	backdated := 0
	for _, granted := range previous.WeeklyEntitlements {
		owed := c.CalculateWeek(expectedDeliveryDate, childrenDatesOfBirth, granted.Date)
		if shortfall := owed.TotalVoucherCount() - granted.TotalVoucherCount(); shortfall > 0 {
			backdated += shortfall
		}
	}

	return domain.CycleEntitlement{
		WeeklyEntitlements: weeks,
		BackdatedVouchers:  backdated,
	}
}

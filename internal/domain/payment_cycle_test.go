package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasChildrenOrPregnancy(t *testing.T) {
	grace := 12 * 7 * 24 * time.Hour
	asOf := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	edd := func(d time.Time) *time.Time { return &d }

	tests := []struct {
		name  string
		cycle PaymentCycle
		want  bool
	}{
		{
			name:  "child under four keeps the claim entitled",
			cycle: PaymentCycle{ChildrenDatesOfBirth: []time.Time{time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)}},
			want:  true,
		},
		{
			name:  "six-year-old child has aged out",
			cycle: PaymentCycle{ChildrenDatesOfBirth: []time.Time{time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)}},
			want:  false,
		},
		{
			name:  "child turning four exactly today has aged out",
			cycle: PaymentCycle{ChildrenDatesOfBirth: []time.Time{time.Date(2022, time.June, 1, 0, 0, 0, 0, time.UTC)}},
			want:  false,
		},
		{
			name: "one aged-out child and one under four",
			cycle: PaymentCycle{ChildrenDatesOfBirth: []time.Time{
				time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2024, time.November, 5, 0, 0, 0, 0, time.UTC),
			}},
			want: true,
		},
		{
			name:  "pregnancy within grace period",
			cycle: PaymentCycle{ExpectedDeliveryDate: edd(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))},
			want:  true,
		},
		{
			name:  "pregnancy on the last day of grace",
			cycle: PaymentCycle{ExpectedDeliveryDate: edd(asOf.Add(-grace))},
			want:  true,
		},
		{
			name:  "pregnancy past the grace period",
			cycle: PaymentCycle{ExpectedDeliveryDate: edd(asOf.Add(-grace - 24*time.Hour))},
			want:  false,
		},
		{
			name:  "no children and no pregnancy",
			cycle: PaymentCycle{},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cycle.HasChildrenOrPregnancy(grace, asOf))
		})
	}
}

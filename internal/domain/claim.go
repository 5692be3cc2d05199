package domain

import "time"

type ClaimStatus string

const (
	ClaimStatusNew           ClaimStatus = "NEW"
	ClaimStatusPending       ClaimStatus = "PENDING"
	ClaimStatusActive        ClaimStatus = "ACTIVE"
	ClaimStatusPendingExpiry ClaimStatus = "PENDING_EXPIRY"
	ClaimStatusExpired       ClaimStatus = "EXPIRED"
	ClaimStatusRejected      ClaimStatus = "REJECTED"
	ClaimStatusError         ClaimStatus = "ERROR"
)

// IsLive reports whether a claim in this status still blocks a new claim for
// the same claimant or household.
func (s ClaimStatus) IsLive() bool {
	switch s {
	case ClaimStatusNew, ClaimStatusPending, ClaimStatusActive, ClaimStatusPendingExpiry:
		return true
	default:
		return false
	}
}

// LiveClaimStatuses lists statuses counted by the duplicate-claim check.
func LiveClaimStatuses() []string {
	return []string{
		string(ClaimStatusNew),
		string(ClaimStatusPending),
		string(ClaimStatusActive),
		string(ClaimStatusPendingExpiry),
	}
}

type CardStatus string

const (
	CardStatusActive                   CardStatus = "ACTIVE"
	CardStatusPendingCancellation      CardStatus = "PENDING_CANCELLATION"
	CardStatusScheduledForCancellation CardStatus = "SCHEDULED_FOR_CANCELLATION"
	CardStatusCancelled                CardStatus = "CANCELLED"
)

type EligibilityStatus string

const (
	EligibilityStatusEligible   EligibilityStatus = "ELIGIBLE"
	EligibilityStatusIneligible EligibilityStatus = "INELIGIBLE"
	EligibilityStatusPending    EligibilityStatus = "PENDING"
	EligibilityStatusNoMatch    EligibilityStatus = "NO_MATCH"
	EligibilityStatusError      EligibilityStatus = "ERROR"
	EligibilityStatusDuplicate  EligibilityStatus = "DUPLICATE"
)

type Address struct {
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	TownOrCity   string `json:"town_or_city"`
	Postcode     string `json:"postcode"`
}

// Claimant holds the personal details submitted with a claim. Children's
// dates of birth here reflect what the claimant declared; the verifier's view
// is snapshotted onto payment cycles instead.
type Claimant struct {
	FirstName            string      `json:"first_name"`
	LastName             string      `json:"last_name"`
	Nino                 string      `json:"nino"`
	DateOfBirth          time.Time   `json:"date_of_birth"`
	Address              Address     `json:"address"`
	PhoneNumber          string      `json:"phone_number,omitempty"`
	EmailAddress         string      `json:"email_address,omitempty"`
	ExpectedDeliveryDate *time.Time  `json:"expected_delivery_date,omitempty"`
	ChildrenDatesOfBirth []time.Time `json:"children_dates_of_birth,omitempty"`
}

type Claim struct {
	ID                         string
	Claimant                   Claimant
	ClaimStatus                ClaimStatus
	ClaimStatusTimestamp       time.Time
	EligibilityStatus          EligibilityStatus
	EligibilityStatusTimestamp time.Time
	CardStatus                 CardStatus
	CardStatusTimestamp        time.Time
	CardAccountID              string
	DwpHouseholdIdentifier     string
	HmrcHouseholdIdentifier    string
	EligibilityOverride        string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

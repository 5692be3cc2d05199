package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"claims/internal/domain"
)

const dateLayout = "2006-01-02"

type IdentityOutcome string

const (
	IdentityMatched    IdentityOutcome = "MATCHED"
	IdentityNotMatched IdentityOutcome = "NOT_MATCHED"
)

type EligibilityOutcome string

const (
	EligibilityConfirmed    EligibilityOutcome = "CONFIRMED"
	EligibilityNotConfirmed EligibilityOutcome = "NOT_CONFIRMED"
	EligibilityError        EligibilityOutcome = "ERROR"
)

type Request struct {
	FirstName            string
	LastName             string
	Nino                 string
	DateOfBirth          time.Time
	Address              domain.Address
	ExpectedDeliveryDate *time.Time
}

type Response struct {
	IdentityOutcome         IdentityOutcome
	EligibilityOutcome      EligibilityOutcome
	QualifyingBenefit       string
	ChildrenDatesOfBirth    []time.Time
	DwpHouseholdIdentifier  string
	HmrcHouseholdIdentifier string
}

type wireRequest struct {
	FirstName            string         `json:"first_name"`
	LastName             string         `json:"last_name"`
	Nino                 string         `json:"nino"`
	DateOfBirth          string         `json:"date_of_birth"`
	Address              domain.Address `json:"address"`
	ExpectedDeliveryDate string         `json:"expected_delivery_date,omitempty"`
}

type wireResponse struct {
	IdentityOutcome         string   `json:"identity_outcome"`
	EligibilityOutcome      string   `json:"eligibility_outcome"`
	QualifyingBenefit       string   `json:"qualifying_benefit"`
	ChildrenDatesOfBirth    []string `json:"children_dates_of_birth"`
	DwpHouseholdIdentifier  string   `json:"dwp_household_identifier"`
	HmrcHouseholdIdentifier string   `json:"hmrc_household_identifier"`
}

// Client calls the external eligibility verifier. Any transport failure or
// non-2xx response is a retryable service error.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Verify(ctx context.Context, req Request) (*Response, error) {
	wire := wireRequest{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Nino:        req.Nino,
		DateOfBirth: req.DateOfBirth.Format(dateLayout),
		Address:     req.Address,
	}
	if req.ExpectedDeliveryDate != nil {
		wire.ExpectedDeliveryDate = req.ExpectedDeliveryDate.Format(dateLayout)
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal eligibility request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/eligibility", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build eligibility request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("eligibility verifier unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Eligibility verifier returned non-2xx status", zap.Int("status", resp.StatusCode))
		return nil, domain.Transient(fmt.Errorf("eligibility verifier returned status %d", resp.StatusCode))
	}

	var wireResp wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, domain.Transient(fmt.Errorf("failed to decode eligibility response: %w", err))
	}

	out := &Response{
		IdentityOutcome:         IdentityOutcome(wireResp.IdentityOutcome),
		EligibilityOutcome:      EligibilityOutcome(wireResp.EligibilityOutcome),
		QualifyingBenefit:       wireResp.QualifyingBenefit,
		DwpHouseholdIdentifier:  wireResp.DwpHouseholdIdentifier,
		HmrcHouseholdIdentifier: wireResp.HmrcHouseholdIdentifier,
	}
	for _, s := range wireResp.ChildrenDatesOfBirth {
		dob, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("verifier returned malformed child date of birth %q: %w", s, err)
		}
		out.ChildrenDatesOfBirth = append(out.ChildrenDatesOfBirth, dob)
	}
	return out, nil
}

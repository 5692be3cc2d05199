package claims_http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"claims/internal/app/eligibility"
	"claims/internal/domain"
)

// ClaimService is the slice of the claims application service the handler
// needs.
type ClaimService interface {
	CreateClaim(ctx context.Context, claimant domain.Claimant) (*domain.Claim, *eligibility.Decision, error)
}

type ClaimHandler struct {
	service ClaimService
	logger  *zap.Logger
}

func NewClaimHandler(s ClaimService, l *zap.Logger) *ClaimHandler {
	return &ClaimHandler{service: s, logger: l}
}

type AddressRequest struct {
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	TownOrCity   string `json:"town_or_city"`
	Postcode     string `json:"postcode"`
}

type CreateClaimRequest struct {
	FirstName            string         `json:"first_name"`
	LastName             string         `json:"last_name"`
	Nino                 string         `json:"nino"`
	DateOfBirth          string         `json:"date_of_birth"`
	Address              AddressRequest `json:"address"`
	PhoneNumber          string         `json:"phone_number,omitempty"`
	EmailAddress         string         `json:"email_address,omitempty"`
	ExpectedDeliveryDate string         `json:"expected_delivery_date,omitempty"`
	ChildrenDatesOfBirth []string       `json:"children_dates_of_birth,omitempty"`
}

type EntitlementResponse struct {
	VoucherCount        int `json:"voucher_count"`
	VoucherValueInPence int `json:"voucher_value_in_pence"`
}

type ClaimResponse struct {
	ID                string               `json:"id"`
	ClaimStatus       string               `json:"claim_status"`
	EligibilityStatus string               `json:"eligibility_status"`
	Entitlement       *EntitlementResponse `json:"entitlement,omitempty"`
	CreatedAt         string               `json:"created_at"`
}

type FieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	RequestID string               `json:"request_id,omitempty"`
	Message   string               `json:"message"`
	Fields    []FieldErrorResponse `json:"fields,omitempty"`
}

var ninoPattern = regexp.MustCompile(`^[A-CEGHJ-PR-TW-Z]{2}\d{6}[A-D]$`)

func (h *ClaimHandler) CreateClaimHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreateClaim", zap.Error(err))
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	claimant, fieldErrs := buildClaimant(req)
	if len(fieldErrs) > 0 {
		h.writeError(w, r, http.StatusBadRequest, "Validation failed", fieldErrs)
		return
	}

	claim, decision, err := h.service.CreateClaim(r.Context(), claimant)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			fields := make([]FieldErrorResponse, 0, len(vErr.Fields))
			for _, f := range vErr.Fields {
				fields = append(fields, FieldErrorResponse{Field: f.Field, Message: f.Message})
			}
			h.writeError(w, r, http.StatusBadRequest, "Validation failed", fields)
			return
		}
		h.logger.Error("Failed to create claim", zap.Error(err))
		h.writeError(w, r, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	resp := ClaimResponse{
		ID:                claim.ID,
		ClaimStatus:       string(claim.ClaimStatus),
		EligibilityStatus: string(claim.EligibilityStatus),
		CreatedAt:         claim.CreatedAt.Format(time.RFC3339),
	}
	if decision != nil && decision.Entitlement != nil {
		resp.Entitlement = &EntitlementResponse{
			VoucherCount:        decision.Entitlement.TotalVoucherCount(),
			VoucherValueInPence: decision.Entitlement.TotalVoucherValueInPence(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func buildClaimant(req CreateClaimRequest) (domain.Claimant, []FieldErrorResponse) {
	var fields []FieldErrorResponse
	require := func(value, name string) {
		if value == "" {
			fields = append(fields, FieldErrorResponse{Field: name, Message: "must not be empty"})
		}
	}
	require(req.FirstName, "first_name")
	require(req.LastName, "last_name")
	require(req.Nino, "nino")
	require(req.Address.AddressLine1, "address.address_line_1")
	require(req.Address.Postcode, "address.postcode")

	if req.Nino != "" && !ninoPattern.MatchString(req.Nino) {
		fields = append(fields, FieldErrorResponse{Field: "nino", Message: "must be a valid national insurance number"})
	}

	now := time.Now()
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		fields = append(fields, FieldErrorResponse{Field: "date_of_birth", Message: "must be a date in YYYY-MM-DD format"})
	} else if !dob.Before(now) {
		fields = append(fields, FieldErrorResponse{Field: "date_of_birth", Message: "must be a date in the past"})
	}

	claimant := domain.Claimant{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Nino:        req.Nino,
		DateOfBirth: dob,
		Address: domain.Address{
			AddressLine1: req.Address.AddressLine1,
			AddressLine2: req.Address.AddressLine2,
			TownOrCity:   req.Address.TownOrCity,
			Postcode:     req.Address.Postcode,
		},
		PhoneNumber:  req.PhoneNumber,
		EmailAddress: req.EmailAddress,
	}

	if req.ExpectedDeliveryDate != "" {
		edd, err := parseDate(req.ExpectedDeliveryDate)
		switch {
		case err != nil:
			fields = append(fields, FieldErrorResponse{Field: "expected_delivery_date", Message: "must be a date in YYYY-MM-DD format"})
		case edd.Before(now.AddDate(0, -1, 0)) || edd.After(now.AddDate(0, 8, 0)):
			// A pregnancy can be reported slightly after the due date, but a
			// due date further than a full term away cannot be genuine.
			fields = append(fields, FieldErrorResponse{Field: "expected_delivery_date", Message: "must be no more than one month in the past and eight months in the future"})
		default:
			claimant.ExpectedDeliveryDate = &edd
		}
	}
	for i, raw := range req.ChildrenDatesOfBirth {
		childDob, err := parseDate(raw)
		if err != nil {
			fields = append(fields, FieldErrorResponse{
				Field:   "children_dates_of_birth",
				Message: "entry " + strconv.Itoa(i) + " must be a date in YYYY-MM-DD format",
			})
			continue
		}
		claimant.ChildrenDatesOfBirth = append(claimant.ChildrenDatesOfBirth, childDob)
	}

	return claimant, fields
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

func (h *ClaimHandler) writeError(w http.ResponseWriter, r *http.Request, status int, message string, fields []FieldErrorResponse) {
	resp := ErrorResponse{
		RequestID: middleware.GetReqID(r.Context()),
		Message:   message,
		Fields:    fields,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to write JSON error response", zap.Error(err))
	}
}

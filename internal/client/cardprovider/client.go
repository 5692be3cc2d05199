package cardprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"claims/internal/domain"
)

type CreateCardRequest struct {
	ClaimID      string         `json:"claim_id"`
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	DateOfBirth  string         `json:"date_of_birth"`
	Address      domain.Address `json:"address"`
	EmailAddress string         `json:"email_address,omitempty"`
	PhoneNumber  string         `json:"phone_number,omitempty"`
}

type createCardResponse struct {
	CardAccountID string `json:"card_account_id"`
}

type balanceResponse struct {
	AvailableBalanceInPence int `json:"available_balance_in_pence"`
}

type depositRequest struct {
	AmountInPence int    `json:"amount_in_pence"`
	Reference     string `json:"reference"`
}

type depositResponse struct {
	ReferenceID string `json:"reference_id"`
}

// Client calls the external card/payment provider. Deposits carry a caller
// supplied reference; the provider treats a repeated reference as the same
// deposit, which is what makes payment retries safe.
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

func (c *Client) CreateCard(ctx context.Context, req CreateCardRequest) (string, error) {
	var resp createCardResponse
	if err := c.do(ctx, http.MethodPost, "/v1/cards", req, &resp); err != nil {
		return "", err
	}
	if resp.CardAccountID == "" {
		return "", fmt.Errorf("card provider returned an empty card account id")
	}
	return resp.CardAccountID, nil
}

func (c *Client) GetBalance(ctx context.Context, cardAccountID string) (int, error) {
	var resp balanceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/cards/"+cardAccountID+"/balance", nil, &resp); err != nil {
		return 0, err
	}
	return resp.AvailableBalanceInPence, nil
}

// DepositFunds pays amountInPence onto the card. The reference must be stable
// per logical attempt so that a retry after an ambiguous failure cannot
// double-pay.
func (c *Client) DepositFunds(ctx context.Context, cardAccountID string, amountInPence int, reference string) (string, error) {
	var resp depositResponse
	req := depositRequest{AmountInPence: amountInPence, Reference: reference}
	if err := c.do(ctx, http.MethodPost, "/v1/cards/"+cardAccountID+"/deposit", req, &resp); err != nil {
		return "", err
	}
	return resp.ReferenceID, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	var reader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal card provider request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build card provider request: %w", err)
	}
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Transient(fmt.Errorf("card provider unreachable: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		// fallthrough to decode
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("Card provider rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
			zap.ByteString("detail", detail))
		return domain.NewValidationError("card_provider", fmt.Sprintf("status %d: %s", resp.StatusCode, detail))
	default:
		return domain.Transient(fmt.Errorf("card provider returned status %d for %s", resp.StatusCode, path))
	}

	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return domain.Transient(fmt.Errorf("failed to decode card provider response: %w", err))
	}
	return nil
}

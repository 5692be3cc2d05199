package notify

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

type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelText   Channel = "sms"
	ChannelLetter Channel = "letter"
)

type sendRequest struct {
	TemplateID      string            `json:"template_id"`
	Recipient       string            `json:"recipient"`
	Personalisation map[string]string `json:"personalisation,omitempty"`
}

// Client sends templated notifications. Failures here are audited and
// retried via the message queue; they never gate claim or payment state.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Send(ctx context.Context, channel Channel, templateID, recipient string, personalisation map[string]string) error {
	body, err := json.Marshal(sendRequest{
		TemplateID:      templateID,
		Recipient:       recipient,
		Personalisation: personalisation,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/notifications/"+string(channel), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Transient(fmt.Errorf("notification sender unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Notification sender returned non-2xx status",
			zap.Int("status", resp.StatusCode),
			zap.String("channel", string(channel)),
			zap.String("template_id", templateID))
		return domain.Transient(fmt.Errorf("notification sender returned status %d", resp.StatusCode))
	}
	return nil
}

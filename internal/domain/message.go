package domain

import "time"

type MessageType string

const (
	MessageTypeDetermineEntitlement       MessageType = "DETERMINE_ENTITLEMENT"
	MessageTypeMakePayment                MessageType = "MAKE_PAYMENT"
	MessageTypeCreateNewCard              MessageType = "CREATE_NEW_CARD"
	MessageTypeSendEmail                  MessageType = "SEND_EMAIL"
	MessageTypeSendLetter                 MessageType = "SEND_LETTER"
	MessageTypeSendText                   MessageType = "SEND_TEXT"
	MessageTypeReportClaim                MessageType = "REPORT_CLAIM"
	MessageTypeReportPayment              MessageType = "REPORT_PAYMENT"
	MessageTypeAdditionalPregnancyPayment MessageType = "ADDITIONAL_PREGNANCY_PAYMENT"
)

// AllMessageTypes lists every type the orchestrator polls for. Each gets its
// own scheduler job.
func AllMessageTypes() []MessageType {
	return []MessageType{
		MessageTypeDetermineEntitlement,
		MessageTypeMakePayment,
		MessageTypeCreateNewCard,
		MessageTypeSendEmail,
		MessageTypeSendLetter,
		MessageTypeSendText,
		MessageTypeReportClaim,
		MessageTypeReportPayment,
		MessageTypeAdditionalPregnancyPayment,
	}
}

type MessageStatus string

const (
	MessageStatusQueued MessageStatus = "QUEUED"
	MessageStatusParked MessageStatus = "PARKED"
)

// Message is a durable unit of work. The payload carries entity identifiers
// only, never entity snapshots; handlers re-read fresh state by id so a
// retried message cannot act on stale data.
type Message struct {
	ID           string
	Type         MessageType
	Payload      []byte
	Status       MessageStatus
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Payload schemas, one per message type that carries more than a claim id.

type DetermineEntitlementPayload struct {
	ClaimID                string `json:"claimId"`
	CurrentPaymentCycleID  string `json:"currentPaymentCycleId"`
	PreviousPaymentCycleID string `json:"previousPaymentCycleId"`
}

type MakePaymentPayload struct {
	ClaimID        string `json:"claimId"`
	PaymentCycleID string `json:"paymentCycleId"`
	CardAccountID  string `json:"cardAccountId"`
}

type CreateNewCardPayload struct {
	ClaimID string `json:"claimId"`
}

type NotificationPayload struct {
	ClaimID         string            `json:"claimId"`
	TemplateID      string            `json:"templateId"`
	Personalisation map[string]string `json:"personalisation,omitempty"`
}

type ReportClaimPayload struct {
	ClaimID string `json:"claimId"`
	Action  string `json:"action"`
}

type ReportPaymentPayload struct {
	ClaimID        string `json:"claimId"`
	PaymentCycleID string `json:"paymentCycleId"`
	PaymentID      string `json:"paymentId"`
	Action         string `json:"action"`
}

type AdditionalPregnancyPaymentPayload struct {
	ClaimID        string `json:"claimId"`
	PaymentCycleID string `json:"paymentCycleId"`
}

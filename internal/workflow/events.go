package workflow

import (
	"fmt"
	"time"
)

// EventType names a domain event raised by the quote, signature, invoice or
// payment subsystems. The value doubles as the metadata "trigger".
type EventType string

const (
	EventQuoteCreated        EventType = "quote_created"
	EventQuoteSent           EventType = "quote_sent"
	EventQuoteSigned         EventType = "quote_signed"
	EventSignaturesCompleted EventType = "signatures_completed"
	EventInvoiceCreated      EventType = "invoice_created"
	EventPaymentRecorded     EventType = "payment_recorded"
)

// ParseEventType converts a raw string to an EventType.
func ParseEventType(s string) (EventType, error) {
	et := EventType(s)
	switch et {
	case EventQuoteCreated, EventQuoteSent, EventQuoteSigned,
		EventSignaturesCompleted, EventInvoiceCreated, EventPaymentRecorded:
		return et, nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Event is one domain event concerning a lead. Only the payload matching Type
// is read; the rest is ignored.
type Event struct {
	ID         string    `json:"event_id"`
	LeadID     int64     `json:"lead_id"`
	Type       EventType `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`

	Quote     *QuotePayload     `json:"quote,omitempty"`
	Signature *SignaturePayload `json:"signature,omitempty"`
	Invoice   *InvoicePayload   `json:"invoice,omitempty"`
	Payment   *PaymentPayload   `json:"payment,omitempty"`
}

type QuotePayload struct {
	QuoteID     string  `json:"quote_id"`
	QuoteNumber string  `json:"quote_number,omitempty"`
	Total       float64 `json:"total"`
}

type SignaturePayload struct {
	QuoteID    string `json:"quote_id"`
	SignerName string `json:"signer_name,omitempty"`
	SignerRole string `json:"signer_role,omitempty"` // customer | contractor
}

type InvoicePayload struct {
	InvoiceID     string  `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	Total         float64 `json:"total"`
}

// PaymentPayload carries the invoice totals as the payment subsystem saw them
// after recording the payment, so the balance never has to be re-queried.
type PaymentPayload struct {
	PaymentID    string  `json:"payment_id"`
	InvoiceID    string  `json:"invoice_id"`
	Amount       float64 `json:"amount"`
	InvoiceTotal float64 `json:"invoice_total"`
	TotalPaid    float64 `json:"total_paid"`
	Method       string  `json:"method,omitempty"`
}

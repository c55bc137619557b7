package workflow

import (
	"math"
	"time"
)

// Decision is the outcome of mapping an event against a lead's current stage:
// either a target with the metadata to record, or a skip with its reason.
type Decision struct {
	Target   Stage
	Metadata map[string]any
	Skip     *TransitionError
}

// Skipped reports whether the event must not move the lead.
func (d Decision) Skipped() bool { return d.Skip != nil }

type eventRule struct {
	// precondition reports whether current is an acceptable prior stage.
	precondition func(current Stage) bool
	expected     string
	target       func(ev Event) Stage
	payload      func(ev Event) (map[string]any, bool)
}

var eventRules = map[EventType]eventRule{
	EventQuoteCreated: {
		precondition: statusIs(StatusNewLead),
		expected:     string(StatusNewLead),
		target:       fixed(st(StatusQuote, SubEstimating)),
		payload:      quoteMetadata,
	},
	EventQuoteSent: {
		precondition: statusIs(StatusQuote),
		expected:     string(StatusQuote),
		target:       fixed(st(StatusQuote, SubQuoteSent)),
		payload:      quoteMetadata,
	},
	EventQuoteSigned: {
		precondition: statusIs(StatusQuote),
		expected:     string(StatusQuote),
		target:       fixed(st(StatusQuote, SubApproved)),
		payload:      signatureMetadata,
	},
	EventSignaturesCompleted: {
		precondition: stageIs(st(StatusQuote, SubApproved)),
		expected:     st(StatusQuote, SubApproved).String(),
		target:       fixed(st(StatusProduction, SubContractSigned)),
		payload:      signatureMetadata,
	},
	EventInvoiceCreated: {
		precondition: stageIs(st(StatusProduction, SubCompleted)),
		expected:     st(StatusProduction, SubCompleted).String(),
		target:       fixed(st(StatusInvoiced, SubSent)),
		payload:      invoiceMetadata,
	},
	EventPaymentRecorded: {
		precondition: statusIs(StatusInvoiced),
		expected:     string(StatusInvoiced),
		target:       paymentTarget,
		payload:      paymentMetadata,
	},
}

// MapEvent computes the stage an event moves a lead to from current. It is a
// pure function of its inputs.
//
// An event whose target equals current maps to current, which the executor
// treats as a no-op; this is what makes redelivery safe. Events never move a
// lead sideways or backward: an unmet precondition or a target behind current
// yields a skip.
func MapEvent(ev Event, current Stage) Decision {
	rule, ok := eventRules[ev.Type]
	if !ok {
		return Decision{Skip: reject(CodeInvalidPayload, current, Stage{}, "unknown event type %q", ev.Type)}
	}
	meta, ok := rule.payload(ev)
	if !ok {
		return Decision{Skip: reject(CodeInvalidPayload, current, Stage{}, "%s event lacks a usable payload", ev.Type)}
	}
	meta["trigger"] = string(ev.Type)
	if ev.ID != "" {
		meta["event_id"] = ev.ID
	}
	if !ev.OccurredAt.IsZero() {
		meta["occurred_at"] = ev.OccurredAt.UTC().Format(time.RFC3339)
	}

	target := rule.target(ev)
	if target == current {
		return Decision{Target: target, Metadata: meta}
	}
	if !rule.precondition(current) {
		return Decision{Skip: reject(CodePreconditionNotMet, current, target,
			"%s requires lead in %s, lead is %s", ev.Type, rule.expected, current)}
	}
	if rank(target) < rank(current) {
		return Decision{Skip: reject(CodePreconditionNotMet, current, target,
			"%s would move lead backward from %s to %s", ev.Type, current, target)}
	}
	return Decision{Target: target, Metadata: meta}
}

func statusIs(status Status) func(Stage) bool {
	return func(s Stage) bool { return s.Status == status }
}

func stageIs(want Stage) func(Stage) bool {
	return func(s Stage) bool { return s == want }
}

func fixed(s Stage) func(Event) Stage {
	return func(Event) Stage { return s }
}

func quoteMetadata(ev Event) (map[string]any, bool) {
	if ev.Quote == nil || ev.Quote.QuoteID == "" {
		return nil, false
	}
	meta := map[string]any{
		"quote_id":    ev.Quote.QuoteID,
		"quote_total": roundCents(ev.Quote.Total),
	}
	if ev.Quote.QuoteNumber != "" {
		meta["quote_number"] = ev.Quote.QuoteNumber
	}
	return meta, true
}

func signatureMetadata(ev Event) (map[string]any, bool) {
	if ev.Signature == nil || ev.Signature.QuoteID == "" {
		return nil, false
	}
	meta := map[string]any{"quote_id": ev.Signature.QuoteID}
	if ev.Signature.SignerName != "" {
		meta["signer_name"] = ev.Signature.SignerName
	}
	if ev.Signature.SignerRole != "" {
		meta["signer_role"] = ev.Signature.SignerRole
	}
	return meta, true
}

func invoiceMetadata(ev Event) (map[string]any, bool) {
	if ev.Invoice == nil || ev.Invoice.InvoiceID == "" {
		return nil, false
	}
	meta := map[string]any{
		"invoice_id":    ev.Invoice.InvoiceID,
		"invoice_total": roundCents(ev.Invoice.Total),
	}
	if ev.Invoice.InvoiceNumber != "" {
		meta["invoice_number"] = ev.Invoice.InvoiceNumber
	}
	return meta, true
}

func paymentMetadata(ev Event) (map[string]any, bool) {
	p := ev.Payment
	if p == nil || p.PaymentID == "" || p.Amount <= 0 || p.InvoiceTotal <= 0 {
		return nil, false
	}
	if cents(p.TotalPaid) < cents(p.Amount) {
		return nil, false
	}
	balance := balanceCents(p)
	meta := map[string]any{
		"payment_id":        p.PaymentID,
		"invoice_id":        p.InvoiceID,
		"payment_amount":    roundCents(p.Amount),
		"invoice_total":     roundCents(p.InvoiceTotal),
		"total_paid":        roundCents(p.TotalPaid),
		"balance_remaining": float64(max(balance, 0)) / 100,
		"paid_in_full":      balance <= 0,
	}
	if p.Method != "" {
		meta["payment_method"] = p.Method
	}
	return meta, true
}

func paymentTarget(ev Event) Stage {
	if ev.Payment != nil && balanceCents(ev.Payment) <= 0 {
		return st(StatusInvoiced, SubPaid)
	}
	return st(StatusInvoiced, SubPartialPayment)
}

func balanceCents(p *PaymentPayload) int64 {
	return cents(p.InvoiceTotal) - cents(p.TotalPaid)
}

func cents(v float64) int64 { return int64(math.Round(v * 100)) }

func roundCents(v float64) float64 { return float64(cents(v)) / 100 }

// Package workflow defines the lead status state machine: the catalog of legal
// (status, sub-status) pairs, the manual transition graph, and the mapping from
// domain events to automated transitions.
//
// Pipeline:
//
//	NEW_LEAD ──► QUOTE ──► PRODUCTION ──► INVOICED ──► CLOSED/WON
//	    │          │           │
//	    └──────────┴───────────┴──► CLOSED/LOST
//
// CLOSED/WON and CLOSED/LOST are terminal.
package workflow

import "fmt"

// Status is the primary pipeline stage of a lead.
type Status string

const (
	StatusNewLead    Status = "NEW_LEAD"
	StatusQuote      Status = "QUOTE"
	StatusProduction Status = "PRODUCTION"
	StatusInvoiced   Status = "INVOICED"
	StatusClosed     Status = "CLOSED"
)

// SubStatus refines a Status. Its legal values depend on the Status.
type SubStatus string

const (
	SubUncontacted          SubStatus = "UNCONTACTED"
	SubContacted            SubStatus = "CONTACTED"
	SubAppointmentScheduled SubStatus = "APPOINTMENT_SCHEDULED"

	SubEstimating SubStatus = "ESTIMATING"
	SubQuoteSent  SubStatus = "QUOTE_SENT"
	SubApproved   SubStatus = "APPROVED"

	SubContractSigned   SubStatus = "CONTRACT_SIGNED"
	SubMaterialsOrdered SubStatus = "MATERIALS_ORDERED"
	SubScheduled        SubStatus = "SCHEDULED"
	SubInProgress       SubStatus = "IN_PROGRESS"
	SubCompleted        SubStatus = "COMPLETED"

	SubSent           SubStatus = "SENT"
	SubPartialPayment SubStatus = "PARTIAL_PAYMENT"
	SubPaid           SubStatus = "PAID"

	SubWon  SubStatus = "WON"
	SubLost SubStatus = "LOST"
)

// statusOrder lists primary statuses in pipeline order.
var statusOrder = []Status{
	StatusNewLead,
	StatusQuote,
	StatusProduction,
	StatusInvoiced,
	StatusClosed,
}

// subStatuses lists the legal sub-statuses of each status in pipeline order.
var subStatuses = map[Status][]SubStatus{
	StatusNewLead:    {SubUncontacted, SubContacted, SubAppointmentScheduled},
	StatusQuote:      {SubEstimating, SubQuoteSent, SubApproved},
	StatusProduction: {SubContractSigned, SubMaterialsOrdered, SubScheduled, SubInProgress, SubCompleted},
	StatusInvoiced:   {SubSent, SubPartialPayment, SubPaid},
	StatusClosed:     {SubWon, SubLost},
}

var terminal = map[Stage]bool{
	{StatusClosed, SubWon}:  true,
	{StatusClosed, SubLost}: true,
}

// InitialStage is the stage every lead is created in.
var InitialStage = Stage{Status: StatusNewLead, SubStatus: SubUncontacted}

// Stage is a (status, sub-status) pair.
type Stage struct {
	Status    Status    `json:"status"`
	SubStatus SubStatus `json:"sub_status"`
}

func (s Stage) String() string { return string(s.Status) + "/" + string(s.SubStatus) }

// Valid reports whether the sub-status is legal under the status.
func (s Stage) Valid() bool {
	for _, sub := range subStatuses[s.Status] {
		if sub == s.SubStatus {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether status belongs to the catalog.
func IsValidStatus(status Status) bool {
	_, ok := subStatuses[status]
	return ok
}

// LegalSubStatuses returns the sub-statuses allowed under status, in pipeline
// order. It returns nil for an unknown status.
func LegalSubStatuses(status Status) []SubStatus {
	subs, ok := subStatuses[status]
	if !ok {
		return nil
	}
	out := make([]SubStatus, len(subs))
	copy(out, subs)
	return out
}

// IsTerminal reports whether the pair is a final state with no outgoing manual moves.
func IsTerminal(status Status, sub SubStatus) bool {
	return terminal[Stage{Status: status, SubStatus: sub}]
}

// Statuses returns all primary statuses in pipeline order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !IsValidStatus(st) {
		return "", fmt.Errorf("unknown lead status %q", s)
	}
	return st, nil
}

// ParseStage converts raw strings to a Stage, rejecting pairs outside the catalog.
func ParseStage(status, sub string) (Stage, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return Stage{}, err
	}
	stage := Stage{Status: st, SubStatus: SubStatus(sub)}
	if !stage.Valid() {
		return Stage{}, fmt.Errorf("sub-status %q is not legal under %s", sub, st)
	}
	return stage, nil
}

// rank orders stages along the pipeline. CLOSED/LOST shares the rank of
// CLOSED/WON since both end the pipeline. Invalid stages rank -1.
func rank(s Stage) int {
	n := 0
	for _, st := range statusOrder {
		for _, sub := range subStatuses[st] {
			if st == s.Status && sub == s.SubStatus {
				if s == (Stage{StatusClosed, SubLost}) {
					return n - 1
				}
				return n
			}
			n++
		}
	}
	return -1
}

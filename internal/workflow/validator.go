package workflow

// Origin tells whether a transition was requested by an operator or raised by
// a domain event.
type Origin string

const (
	OriginManual    Origin = "manual"
	OriginAutomated Origin = "automated"
)

func st(status Status, sub SubStatus) Stage { return Stage{Status: status, SubStatus: sub} }

var lost = st(StatusClosed, SubLost)

// manualTransitions lists every move an operator may request. Terminal stages
// have no entry.
var manualTransitions = map[Stage][]Stage{
	st(StatusNewLead, SubUncontacted): {
		st(StatusNewLead, SubContacted),
		st(StatusNewLead, SubAppointmentScheduled),
		st(StatusQuote, SubEstimating),
		lost,
	},
	st(StatusNewLead, SubContacted): {
		st(StatusNewLead, SubUncontacted),
		st(StatusNewLead, SubAppointmentScheduled),
		st(StatusQuote, SubEstimating),
		lost,
	},
	st(StatusNewLead, SubAppointmentScheduled): {
		st(StatusNewLead, SubContacted),
		st(StatusQuote, SubEstimating),
		lost,
	},

	st(StatusQuote, SubEstimating): {
		st(StatusNewLead, SubContacted),
		st(StatusQuote, SubQuoteSent),
		lost,
	},
	st(StatusQuote, SubQuoteSent): {
		st(StatusQuote, SubEstimating),
		st(StatusQuote, SubApproved),
		lost,
	},
	st(StatusQuote, SubApproved): {
		st(StatusQuote, SubQuoteSent),
		st(StatusProduction, SubContractSigned),
		lost,
	},

	st(StatusProduction, SubContractSigned): {
		st(StatusProduction, SubMaterialsOrdered),
		st(StatusProduction, SubScheduled),
		lost,
	},
	st(StatusProduction, SubMaterialsOrdered): {
		st(StatusProduction, SubScheduled),
	},
	st(StatusProduction, SubScheduled): {
		st(StatusProduction, SubMaterialsOrdered),
		st(StatusProduction, SubInProgress),
	},
	st(StatusProduction, SubInProgress): {
		st(StatusProduction, SubScheduled),
		st(StatusProduction, SubCompleted),
	},
	st(StatusProduction, SubCompleted): {
		st(StatusProduction, SubInProgress),
		st(StatusInvoiced, SubSent),
	},

	st(StatusInvoiced, SubSent): {
		st(StatusInvoiced, SubPartialPayment),
		st(StatusInvoiced, SubPaid),
	},
	st(StatusInvoiced, SubPartialPayment): {
		st(StatusInvoiced, SubPaid),
	},
	st(StatusInvoiced, SubPaid): {
		st(StatusClosed, SubWon),
	},
}

// Validate decides whether moving from current to target is legal for the
// given origin. It returns nil or a *TransitionError and never mutates anything.
//
// Automated targets are computed by MapEvent, so for them only catalog
// legality is checked. A target equal to current is valid; the executor
// short-circuits it as a no-op.
func Validate(current, target Stage, origin Origin) error {
	if !target.Valid() {
		return reject(CodeSchemaViolation, current, target, "%s is not a legal status pair", target)
	}
	if !current.Valid() {
		return reject(CodeDataIntegrity, current, target, "stored stage %s is not a legal status pair", current)
	}
	if current == target || origin == OriginAutomated {
		return nil
	}
	if IsTerminal(current.Status, current.SubStatus) {
		return reject(CodeIllegalManualTransition, current, target, "%s is terminal", current)
	}
	for _, next := range manualTransitions[current] {
		if next == target {
			return nil
		}
	}
	return reject(CodeIllegalManualTransition, current, target, "transition %s → %s is not allowed", current, target)
}

// AllowedTargets returns the stages an operator may move a lead to from current.
func AllowedTargets(current Stage) []Stage {
	next := manualTransitions[current]
	out := make([]Stage, len(next))
	copy(out, next)
	return out
}

package workflow

import "fmt"

// ErrorCode classifies why a transition was not applied. Codes are strings so
// they serialize naturally into API responses and log fields.
type ErrorCode string

const (
	// CodeSchemaViolation: the target (status, sub-status) pair is not in the catalog.
	CodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// CodeIllegalManualTransition: the move is not in the manual transition graph.
	CodeIllegalManualTransition ErrorCode = "ILLEGAL_MANUAL_TRANSITION"

	// CodePreconditionNotMet: an event arrived for a lead not in the expected prior state.
	CodePreconditionNotMet ErrorCode = "PRECONDITION_NOT_MET"

	// CodeInvalidPayload: an event lacks the payload its type requires.
	CodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	// CodeConcurrentModification: the lead moved between read and write.
	CodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	// CodeDataIntegrity: the stored stage of a lead is itself illegal.
	CodeDataIntegrity ErrorCode = "DATA_INTEGRITY"

	// CodeMissingActor: a manual transition was requested without a user id.
	CodeMissingActor ErrorCode = "MISSING_ACTOR"
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	Code ErrorCode
	From Stage
	To   Stage
	Msg  string
}

func (e *TransitionError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s -> %s", e.Code, e.From, e.To)
}

// Is matches any TransitionError carrying the same code, so callers can write
// errors.Is(err, workflow.ErrIllegalManualTransition).
func (e *TransitionError) Is(target error) bool {
	t, ok := target.(*TransitionError)
	return ok && t.Code == e.Code
}

var (
	ErrSchemaViolation         = &TransitionError{Code: CodeSchemaViolation}
	ErrIllegalManualTransition = &TransitionError{Code: CodeIllegalManualTransition}
	ErrPreconditionNotMet      = &TransitionError{Code: CodePreconditionNotMet}
	ErrInvalidPayload          = &TransitionError{Code: CodeInvalidPayload}
	ErrConcurrentModification  = &TransitionError{Code: CodeConcurrentModification}
	ErrDataIntegrity           = &TransitionError{Code: CodeDataIntegrity}
	ErrMissingActor            = &TransitionError{Code: CodeMissingActor}
)

func reject(code ErrorCode, from, to Stage, format string, args ...any) *TransitionError {
	return &TransitionError{Code: code, From: from, To: to, Msg: fmt.Sprintf(format, args...)}
}

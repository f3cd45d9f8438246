package internalerr

import "errors"

// Sentinel errors for common cases
var (
	// ErrUnreachableAnswer means no rule chain derives the target answer
	// within the configured depth bound.
	ErrUnreachableAnswer = errors.New("unreachable answer")

	// ErrRuleBindingConflict means a rule matched but bound a variable
	// inconsistently with an already-bound value in the same derivation.
	ErrRuleBindingConflict = errors.New("rule binding conflict")

	// ErrInvalidGraph means a constructed reasoning graph violates a
	// structural invariant (cycle, missing root, extraneous antecedent).
	ErrInvalidGraph = errors.New("invalid reasoning graph")

	// ErrEvaluationFailed means the model call behind an evaluation failed.
	ErrEvaluationFailed = errors.New("evaluation failed")

	// ErrMalformedPrediction means model output could not be parsed into an
	// answer and trace.
	ErrMalformedPrediction = errors.New("malformed prediction")

	// ErrUnknownDomain means the requested tax domain is not registered.
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrStoreUnavailable means the run log store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

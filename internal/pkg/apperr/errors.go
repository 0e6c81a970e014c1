package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by what the caller may safely do next.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindForbidden  Kind = "FORBIDDEN"
	KindNotFound   Kind = "NOT_FOUND"

	// Wallet stage: nothing reached the ledger.
	KindSigningFailed  Kind = "SIGNING_FAILED"
	KindSigningTimeout Kind = "SIGNING_TIMEOUT"
	KindUserRejected   Kind = "USER_REJECTED"

	// Ledger stage, definitively not applied.
	KindLedgerRejected    Kind = "LEDGER_REJECTED"
	KindContractReverted  Kind = "CONTRACT_REVERTED"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindInsufficientGas   Kind = "INSUFFICIENT_GAS"

	// Ledger stage, outcome unknown.
	KindLedgerUnconfirmed Kind = "LEDGER_UNCONFIRMED"
	KindNetworkTimeout    Kind = "NETWORK_TIMEOUT"

	// Ledger applied, mirror not written.
	KindMirrorWriteFailed Kind = "MIRROR_WRITE_FAILED"

	// A guarded conditional write matched zero rows.
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"

	KindInternal Kind = "INTERNAL"
)

// Retry hints returned to API callers.
const (
	RetrySafe                = "safe"
	RetrySafeAfterCorrection = "safe_after_correction"
	RetryReconcileFirst      = "reconcile_first"
	RetryNone                = "none"
)

// Error is the result type carried by every lifecycle operation.
type Error struct {
	Kind    Kind                   `json:"kind"`
	Op      string                 `json:"op,omitempty"`
	Message string                 `json:"message"`
	TxRef   string                 `json:"tx_ref,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// New creates an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.Op != "" {
		msg += " " + e.Op + ":"
	}
	msg += " " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds a context field.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithTxRef records the ledger transaction the error relates to.
func (e *Error) WithTxRef(ref string) *Error {
	e.TxRef = ref
	return e
}

// WithOp sets the operation name when the producer did not know it.
func (e *Error) WithOp(op string) *Error {
	if e.Op == "" {
		e.Op = op
	}
	return e
}

// Retry returns the retry hint for this kind.
func (e *Error) Retry() string {
	switch e.Kind {
	case KindValidation:
		return RetrySafeAfterCorrection
	case KindSigningFailed, KindSigningTimeout, KindUserRejected,
		KindLedgerRejected, KindContractReverted, KindInsufficientFunds, KindInsufficientGas:
		return RetrySafe
	case KindLedgerUnconfirmed, KindNetworkTimeout, KindMirrorWriteFailed:
		return RetryReconcileFirst
	default:
		return RetryNone
	}
}

// SafeToRetry reports whether the operation can be re-run as is (possibly after fixing input).
func (e *Error) SafeToRetry() bool {
	r := e.Retry()
	return r == RetrySafe || r == RetrySafeAfterCorrection
}

// MustReconcile reports whether canonical ledger state has to be read before any retry.
func (e *Error) MustReconcile() bool {
	return e.Retry() == RetryReconcileFirst
}

// Outcome describes what is known about the ledger side effect.
func (e *Error) Outcome() string {
	switch e.Kind {
	case KindLedgerUnconfirmed, KindNetworkTimeout:
		return "unknown"
	case KindMirrorWriteFailed:
		return "ledger_applied"
	case KindInvariantViolation:
		return "no_op"
	default:
		return "not_applied"
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

func NotFound(op, message string) *Error {
	return New(KindNotFound, op, message)
}

func Forbidden(op, message string) *Error {
	return New(KindForbidden, op, message)
}

func Invariant(op, message string) *Error {
	return New(KindInvariantViolation, op, message)
}

func MirrorWrite(op, txRef string, cause error) *Error {
	return Wrap(KindMirrorWriteFailed, op, "ledger confirmed but record store write failed", cause).WithTxRef(txRef)
}

func Internal(op string, cause error) *Error {
	return Wrap(KindInternal, op, "internal error", cause)
}

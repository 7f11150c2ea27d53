// Package gatewayerr defines the tagged error taxonomy the gateway raises,
// mapped to HTTP status codes at the handler boundary. Business logic
// returns these values directly rather than unwinding through panics,
// per the "model core failures as a tagged error enum" design note.
package gatewayerr

import "fmt"

// Kind identifies the class of failure, independent of its message.
type Kind string

const (
	KindAuthFailed          Kind = "AUTH_FAILED"
	KindAgentOrParentInactive Kind = "AGENT_OR_PARENT_INACTIVE"
	KindPolicyViolation     Kind = "POLICY_VIOLATION"
	KindPricingNotFound     Kind = "PRICING_NOT_FOUND"
	KindBudgetExceeded      Kind = "BUDGET_EXCEEDED"
	KindInsufficientCredits Kind = "INSUFFICIENT_CREDITS"
	KindProviderError       Kind = "PROVIDER_ERROR"
	KindProviderNotConfigured Kind = "PROVIDER_NOT_CONFIGURED"
	KindDuplicateRequest    Kind = "DUPLICATE_REQUEST"
)

// statusByKind maps each Kind to the HTTP status it's raised with.
var statusByKind = map[Kind]int{
	KindAuthFailed:            401,
	KindAgentOrParentInactive: 403,
	KindPolicyViolation:       403,
	KindPricingNotFound:       404,
	KindBudgetExceeded:        402,
	KindInsufficientCredits:   402,
	KindProviderError:         502,
	KindProviderNotConfigured: 503,
	KindDuplicateRequest:      409,
}

// Error is the single error type business logic returns; the HTTP layer
// reads Status directly instead of re-deriving it from Kind.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Detail carries structured context (e.g. balance/required for
	// INSUFFICIENT_CREDITS) for logging and audit metadata.
	Detail map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an Error for kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: statusByKind[kind], Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches structured context and returns the same error.
func (e *Error) WithDetail(detail map[string]any) *Error {
	e.Detail = detail
	return e
}

// InsufficientCredits builds the ledger's over-draw failure, carrying
// the balance/required pair callers need for the error body.
func InsufficientCredits(balance, required int64) *Error {
	return New(KindInsufficientCredits, "insufficient credits: balance=%d required=%d", balance, required).
		WithDetail(map[string]any{"balance": balance, "required": required})
}

// BudgetExceeded builds the budget engine's block error, naming the
// specific failing budget for observability.
func BudgetExceeded(level, period string, current, limit, required int64) *Error {
	return New(KindBudgetExceeded,
		"budget exceeded at %s level (%s): current=%d limit=%d required=%d",
		level, period, current, limit, required).
		WithDetail(map[string]any{
			"level": level, "period": period,
			"current": current, "limit": limit, "required": required,
		})
}

package portfolio

import "errors"

// ErrDomainRule is matched by every rejected trading decision
var ErrDomainRule = errors.New("domain rule violation")

var (
	ErrDuplicatePosition = errors.New("position already open")
	ErrMaxPositions      = errors.New("maximum positions reached")
	ErrInsufficientCash  = errors.New("insufficient cash")
	ErrNoPosition        = errors.New("no open position")
	ErrZeroShares        = errors.New("cannot buy zero shares")
)

// DomainRuleError is a rejected trade. The ledger is unchanged when one is
// returned.
type DomainRuleError struct {
	Rule    error
	Message string
}

func (e *DomainRuleError) Error() string { return e.Message }

// Unwrap exposes both the specific rule and ErrDomainRule
func (e *DomainRuleError) Unwrap() []error {
	return []error{e.Rule, ErrDomainRule}
}

func violation(rule error, message string) error {
	return &DomainRuleError{Rule: rule, Message: message}
}

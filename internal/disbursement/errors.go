package disbursement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/drm-suite/payables/internal/shared"
)

var (
	ErrScheduleNotFound   = fmt.Errorf("disbursement schedule %w", shared.ErrNotFound)
	ErrPaymentNotFound    = fmt.Errorf("disbursement %w", shared.ErrNotFound)
	ErrDuplicateSchedule  = fmt.Errorf("disbursement schedule: %w", shared.ErrDuplicate)
	ErrDuplicatePayment   = fmt.Errorf("disbursement: %w", shared.ErrDuplicate)
	ErrInvalidStatus      = errors.New("invalid status for operation")
	ErrApprovalRequired   = errors.New("schedule requires approval before payment")
	ErrApprovalNotPending = errors.New("schedule has no pending approval")
)

// ValidationError wraps input validation failures so callers can match shared.ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return shared.ErrValidation.Error()
	}
	msg := shared.ErrValidation.Error() + ":"
	for _, name := range sortedKeys(e.Fields) {
		msg += " " + name + " " + e.Fields[name] + ";"
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return shared.ErrValidation
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

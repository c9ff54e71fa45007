package ledger

import (
	"errors"
	"fmt"

	"github.com/warp/condition-engine/money"
)

var (
	// ErrNoAdjustableCondition is returned when no committed cash
	// condition can absorb the difference.
	ErrNoAdjustableCondition = errors.New("no adjustable condition")

	// ErrNotCentsDiscrepancy is returned when the difference is zero or
	// larger than CentsWindow. Those gaps need manual edits.
	ErrNotCentsDiscrepancy = errors.New("difference is not a cents discrepancy")
)

// DiscrepancyError carries the difference auto-adjust refused to close.
type DiscrepancyError struct {
	Difference money.Cents
}

func (e *DiscrepancyError) Error() string {
	return fmt.Sprintf("difference of %s cannot be auto-adjusted", money.FormatBRL(e.Difference))
}

func (e *DiscrepancyError) Unwrap() error {
	return ErrNotCentsDiscrepancy
}

package backtester

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is matched by every InsufficientDataError
var ErrInsufficientData = errors.New("insufficient data for backtest")

// InsufficientDataError reports a window too short for the long average.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for backtest: have %d trading days, need at least %d; try a wider date range or check that the dates are valid",
		e.Have, e.Need)
}

// Is lets errors.Is match ErrInsufficientData
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

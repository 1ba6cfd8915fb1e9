package ransac

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds reported by Fit. Test with errors.Is.
var (
	// ErrInvalidParameters is returned for out-of-range options, before any
	// sampling happens.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInsufficientData is returned when there are fewer correspondences
	// than a sample needs.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrRobustFitFailed is returned when no trial produced a usable model.
	ErrRobustFitFailed = errors.New("robust fit failed")

	errSampleRejected = errors.New("sample rejected by IsSampleValid")
	errModelRejected  = errors.New("model rejected by IsModelValid")
)

// ParamError describes a rejected option or input.
type ParamError struct {
	Field  string
	Value  interface{}
	Reason string

	kinds []error
}

func newParamError(field string, value interface{}, reason string, kinds ...error) *ParamError {
	if len(kinds) == 0 {
		kinds = []error{ErrInvalidParameters}
	}
	return &ParamError{Field: field, Value: value, Reason: reason, kinds: kinds}
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%v: %s=%v %s", e.kinds[0], e.Field, e.Value, e.Reason)
}

// Is matches every kind the error was raised as. A sample size larger than
// the data set is both ErrInvalidParameters and ErrInsufficientData.
func (e *ParamError) Is(target error) bool {
	for _, k := range e.kinds {
		if k == target {
			return true
		}
	}
	return false
}

// FitFailedError is returned when every trial was degenerate or rejected.
type FitFailedError struct {
	Trials     int
	Skipped    int
	LastTrial  int
	LastSample []int
	// LastErr is the reason the last trial was discarded.
	LastErr error
}

func (e *FitFailedError) Error() string {
	msg := fmt.Sprintf("%v: %d trials, %d skipped", ErrRobustFitFailed, e.Trials, e.Skipped)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (trial %d sample %v: %v)", e.LastTrial, e.LastSample, e.LastErr)
	}
	return msg
}

// Is reports whether target is ErrRobustFitFailed.
func (e *FitFailedError) Is(target error) bool {
	return target == ErrRobustFitFailed
}

package estimator

import (
	"fmt"

	"github.com/ohowland/sestream/internal/pkg/measurement"
)

// EstimationFailure is a recoverable failure of the external estimator. It
// carries the measurement-set summary of the failed cycle.
type EstimationFailure struct {
	Summary measurement.Summary
	Err     error
}

func (e *EstimationFailure) Error() string {
	return fmt.Sprintf("estimation failed on %v: %v", e.Summary, e.Err)
}

func (e *EstimationFailure) Unwrap() error {
	return e.Err
}

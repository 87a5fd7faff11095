package measurement

import "fmt"

// ContractViolation reports a programming error upstream of estimation, such as
// an unfinalized set or a subject missing from the grid. It is not transient.
type ContractViolation struct {
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation: %s", e.Reason)
}

// Violation builds a ContractViolation from a format string.
func Violation(format string, args ...interface{}) *ContractViolation {
	return &ContractViolation{Reason: fmt.Sprintf(format, args...)}
}

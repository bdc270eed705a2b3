package errors

import "fmt"

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

// ContractViolation reports a programmer error: a missing template slot, an invalid
// field index, an unknown field type. It is logged and the operation that hit it is
// abandoned. It is never shown to the user.
type ContractViolation struct {
	Component string
	Detail    string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("%s: contract violation: %s", e.Component, e.Detail)
}

func Violation(component, format string, args ...any) error {
	return &ContractViolation{Component: component, Detail: fmt.Sprintf(format, args...)}
}

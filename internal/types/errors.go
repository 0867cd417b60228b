package types

import (
	"errors"
	"fmt"
	"strings"
)

// InputError reports an empty or malformed query or record set.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("input error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("input error: %s", e.Message)
}

// OracleError reports a failed call to the external scoring oracle.
type OracleError struct {
	CandidateIDs []string
	Message      string
	Cause        error
}

func (e *OracleError) Error() string {
	ids := strings.Join(e.CandidateIDs, ",")
	if e.Cause != nil {
		return fmt.Sprintf("oracle error [%s]: %s: %v", ids, e.Message, e.Cause)
	}
	return fmt.Sprintf("oracle error [%s]: %s", ids, e.Message)
}

func (e *OracleError) Unwrap() error {
	return e.Cause
}

// EvaluationInputError reports a reference that cannot be evaluated against.
type EvaluationInputError struct {
	Message string
}

func (e *EvaluationInputError) Error() string {
	return fmt.Sprintf("evaluation input error: %s", e.Message)
}

// IsInputError reports whether err is or wraps an *InputError.
func IsInputError(err error) bool {
	var target *InputError
	return errors.As(err, &target)
}

// IsOracleError reports whether err is or wraps an *OracleError.
func IsOracleError(err error) bool {
	var target *OracleError
	return errors.As(err, &target)
}

// IsEvaluationInputError reports whether err is or wraps an *EvaluationInputError.
func IsEvaluationInputError(err error) bool {
	var target *EvaluationInputError
	return errors.As(err, &target)
}

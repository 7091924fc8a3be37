package condition

import "fmt"

// UnknownConditionTypeError is returned for a config type outside the known set.
type UnknownConditionTypeError struct {
	Type string
}

func (e *UnknownConditionTypeError) Error() string {
	return fmt.Sprintf("unknown condition type %q", e.Type)
}

// InvalidConditionParameterError is returned when a parameter is missing,
// has the wrong type or is out of range.
type InvalidConditionParameterError struct {
	Type   string
	Param  string
	Reason string
}

func (e *InvalidConditionParameterError) Error() string {
	return fmt.Sprintf("condition %s: parameter %q: %s", e.Type, e.Param, e.Reason)
}

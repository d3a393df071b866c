package contract

import "errors"

var (
	ErrModelInvoke  = errors.New("model invoke failed")
	ErrValidation   = errors.New("validation failed")
	ErrUnknownTool  = errors.New("unknown tool")
	ErrDependency   = errors.New("dependency unavailable")
	ErrLoopExceeded = errors.New("dialogue loop exceeded max cycles")
)

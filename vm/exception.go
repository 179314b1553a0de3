package vm

import "fmt"

// ErrorKind classifies language-level errors.
type ErrorKind uint8

const (
	ErrorGeneric ErrorKind = iota
	ErrorType
	ErrorReference
	ErrorRange
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorType:
		return "TypeError"
	case ErrorReference:
		return "ReferenceError"
	case ErrorRange:
		return "RangeError"
	}
	return "Error"
}

// Exception is a language exception propagating through Go code. Any
// callback may return one; the runtime never swallows it.
type Exception struct {
	Kind    ErrorKind
	Message string
	// Thrown is the value passed to a throw statement, if any.
	Thrown Value
}

func (e *Exception) Error() string {
	if e.Message == "" && e.Thrown != 0 {
		return "uncaught " + e.Thrown.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// NewTypeError creates a TypeError.
func NewTypeError(format string, args ...any) *Exception {
	return &Exception{Kind: ErrorType, Message: fmt.Sprintf(format, args...)}
}

// NewReferenceError creates a ReferenceError.
func NewReferenceError(format string, args ...any) *Exception {
	return &Exception{Kind: ErrorReference, Message: fmt.Sprintf(format, args...)}
}

// NewRangeError creates a RangeError.
func NewRangeError(format string, args ...any) *Exception {
	return &Exception{Kind: ErrorRange, Message: fmt.Sprintf(format, args...)}
}

// Throw wraps an arbitrary thrown value.
func Throw(v Value) *Exception {
	return &Exception{Thrown: v}
}

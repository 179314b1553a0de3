package vm

import "fmt"

// DebugAssertions enables internal consistency checks that are too costly
// for normal operation.
var DebugAssertions = false

// Assert panics with the formatted message when cond is false. Callers
// guard expensive conditions with DebugAssertions themselves.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

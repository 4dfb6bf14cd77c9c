package core

import "fmt"

// Assert aborts on a violated precondition. Used for programming errors in
// graph declarations, never for runtime conditions.
func Assert(condition bool, msg string) {
	if !condition {
		LogError(msg)
		panic(msg)
	}
}

func Assertf(condition bool, format string, args ...interface{}) {
	if !condition {
		msg := fmt.Sprintf(format, args...)
		LogError(msg)
		panic(msg)
	}
}

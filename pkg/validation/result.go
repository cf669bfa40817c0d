package validation

// Result is the verdict returned by policy-level validators.
//
// Expected rejections are values, never panics: a failed check produces
// Result{Valid: false} with a message naming the violated category
// ("path traversal", "size", ...) so callers can branch on the cause.
type Result struct {
	// Valid reports whether the input passed every check
	Valid bool

	// Message names the violated category when Valid is false; empty otherwise
	Message string
}

// OK returns a passing Result.
func OK() Result {
	return Result{Valid: true}
}

// Rejected returns a failing Result with the given message.
func Rejected(message string) Result {
	return Result{Valid: false, Message: message}
}

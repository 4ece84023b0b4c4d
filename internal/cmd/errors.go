package cmd

import "fmt"

// codedError carries a process exit code alongside the error chain.
type codedError struct {
	code    int
	message string
	err     error
}

func (e *codedError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *codedError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, message: message, err: err}
}

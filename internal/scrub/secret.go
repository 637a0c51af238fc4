// Package scrub provides security helpers for removing sensitive data from errors.
package scrub

import "strings"

// SecretFromError removes secret from error messages.
// Go's http.Client.Do() includes request details in error strings, which can
// leak credentials into logs. Preserves the error chain for errors.Is/As via
// Unwrap().
func SecretFromError(err error, secret string) error {
	if err == nil {
		return nil
	}
	if secret == "" {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, secret) {
		return &scrubbedError{
			msg: strings.ReplaceAll(msg, secret, "[REDACTED]"),
			err: err,
		}
	}
	return err
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

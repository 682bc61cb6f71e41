package dispatch

import "errors"

// StatusError is implemented by errors that carry the upstream HTTP status.
// Callers can use it to map dispatch failures back onto their own responses.
type StatusError interface {
	error
	StatusCode() int
}

// statusErr is the concrete error surfaced for upstream failures.
type statusErr struct {
	code int
	msg  string
}

func (e statusErr) Error() string   { return e.msg }
func (e statusErr) StatusCode() int { return e.code }

// attemptsError annotates a dispatch failure with the number of network
// attempts issued before it surfaced. The wrapped error stays visible to
// errors.Is/As, so StatusError extraction keeps working.
type attemptsError struct {
	err      error
	attempts int
}

func (e attemptsError) Error() string { return e.err.Error() }
func (e attemptsError) Unwrap() error { return e.err }

// AttemptsFromError reports how many network attempts a failed dispatch
// issued before surfacing err. Zero for failures that never reached the
// network (configuration errors, gate failures).
func AttemptsFromError(err error) int {
	var ae attemptsError
	if errors.As(err, &ae) {
		return ae.attempts
	}
	return 0
}

// IsPolicyRejection reports whether err is a terminal content-safety or
// policy block. These render as actionable user-input errors rather than
// system failures, and are never recorded by the failure sink.
func IsPolicyRejection(err error) bool {
	var se StatusError
	if !errors.As(err, &se) {
		return false
	}
	return isContentPolicyMessage(se.Error())
}

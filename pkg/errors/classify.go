package errors

import (
	"errors"
	"os"
	"strings"
)

// CRCMismatchErr is returned by the RTU transport when a response's trailing
// CRC16 does not match the computed checksum of the frame.
type CRCMismatchErr struct{ Reason string }

func (e *CRCMismatchErr) Error() string { return e.Reason }

func NewCRCMismatchErr(reason string) *CRCMismatchErr { return &CRCMismatchErr{Reason: reason} }

func isCRCMismatch(err error) bool {
	var crcErr *CRCMismatchErr
	return errors.As(err, &crcErr)
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Timeout()
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout") ||
		strings.Contains(strings.ToLower(err.Error()), "i/o timeout")
}

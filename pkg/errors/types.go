// Package errors defines the gateway's stable classified error codes and the
// typed error values carrying them, one standalone type per failure domain.
package errors

import "fmt"

// Code is one of the stable integer error codes from the wire contract.
// These values are published verbatim in outbound envelopes
// (metadata.status_code.code) and must never be renumbered.
type Code int

const (
	OK                 Code = 0
	Timeout            Code = 1
	CRCError           Code = 2
	IllegalFunction    Code = 3
	IllegalDataAddress Code = 4
	IllegalDataValue   Code = 5
	SlaveDeviceFailure Code = 6
	PortBusy           Code = 7
	ConfigError        Code = 10
	UnknownError       Code = 12
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Timeout:
		return "TIMEOUT"
	case CRCError:
		return "CRC_ERROR"
	case IllegalFunction:
		return "ILLEGAL_FUNCTION"
	case IllegalDataAddress:
		return "ILLEGAL_DATA_ADDRESS"
	case IllegalDataValue:
		return "ILLEGAL_DATA_VALUE"
	case SlaveDeviceFailure:
		return "SLAVE_DEVICE_FAILURE"
	case PortBusy:
		return "PORT_BUSY"
	case ConfigError:
		return "CONFIG_ERROR"
	case UnknownError:
		return "UNKNOWN_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Kind groups codes by how the Bus Worker must react to them (§7).
type Kind int

const (
	// KindLink: timeouts/CRC failures (1-2), increment no_reply and can
	// trigger per-node backoff.
	KindLink Kind = iota
	// KindProtocol: wire-level exceptions (3-6), surfaced verbatim, drive
	// the heartbeat path, never disconnect the port.
	KindProtocol
	// KindPort: port-ownership faults (7), mark the port faulted and
	// schedule a reopen.
	KindPort
	// KindConfig: misconfiguration (10), fatal for one transaction, not
	// for the worker.
	KindConfig
	// KindUnknown: anything unclassified (12).
	KindUnknown
)

// ClassifyKind returns how the worker must react to a given code.
func ClassifyKind(c Code) Kind {
	switch c {
	case Timeout, CRCError:
		return KindLink
	case IllegalFunction, IllegalDataAddress, IllegalDataValue, SlaveDeviceFailure:
		return KindProtocol
	case PortBusy:
		return KindPort
	case ConfigError:
		return KindConfig
	default:
		return KindUnknown
	}
}

// Classified is a (code, message) pair — the only representation of a
// transport failure that crosses into the Decider or an outbound envelope.
// Classification happens exactly once, inside the Bus Worker, per §7.
type Classified struct {
	Code    Code
	Message string
}

func (c Classified) Error() string {
	return fmt.Sprintf("%s: %s", c.Code, c.Message)
}

// Ok reports whether this result represents a successful transaction.
func (c Classified) Ok() bool { return c.Code == OK }

// Success is the zero-message OK classification, returned by every
// transport call that completed without error.
var Success = Classified{Code: OK}

// Classify maps a raw transport error to a stable (code, message) pair. It
// is the single place that inspects error text/types (§7 "only one place
// inspects message text").
func Classify(err error) Classified {
	if err == nil {
		return Success
	}
	if ex, ok := err.(*ExceptionError); ok {
		return Classified{Code: ex.Code, Message: ex.Error()}
	}
	if ce, ok := err.(*ConfigErr); ok {
		return Classified{Code: ConfigError, Message: ce.Error()}
	}
	if pb, ok := err.(*PortBusyErr); ok {
		return Classified{Code: PortBusy, Message: pb.Error()}
	}
	if isTimeout(err) {
		return Classified{Code: Timeout, Message: err.Error()}
	}
	if isCRCMismatch(err) {
		return Classified{Code: CRCError, Message: err.Error()}
	}
	return Classified{Code: UnknownError, Message: err.Error()}
}

// ExceptionError represents a Modbus exception response (function code with
// the high bit set) whose exception code maps directly onto one of our
// protocol-level codes.
type ExceptionError struct {
	Code         Code
	FunctionCode uint8
	Exception    uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X on function 0x%02X", e.Exception, e.FunctionCode)
}

// NewExceptionError builds an ExceptionError from the raw Modbus exception
// byte, mapping the standard exception codes onto our taxonomy.
func NewExceptionError(functionCode, exception uint8) *ExceptionError {
	code := UnknownError
	switch exception {
	case 0x01:
		code = IllegalFunction
	case 0x02:
		code = IllegalDataAddress
	case 0x03:
		code = IllegalDataValue
	case 0x04, 0x05, 0x06:
		code = SlaveDeviceFailure
	}
	return &ExceptionError{Code: code, FunctionCode: functionCode, Exception: exception}
}

// ConfigErr is a fatal-to-this-transaction misconfiguration, e.g. an
// address that would normalize to a negative wire address.
type ConfigErr struct{ Reason string }

func (e *ConfigErr) Error() string { return e.Reason }

func NewConfigErr(reason string) *ConfigErr { return &ConfigErr{Reason: reason} }

// PortBusyErr signals that the transport's port is currently faulted and
// has not yet reached its retry_at deadline.
type PortBusyErr struct{ Reason string }

func (e *PortBusyErr) Error() string { return e.Reason }

func NewPortBusyErr(reason string) *PortBusyErr { return &PortBusyErr{Reason: reason} }

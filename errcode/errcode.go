package errcode

import "errors"

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Sensor pipeline failures.
	Transport          Code = "transport_error"     // I2C/serial exchange failed
	Calibration        Code = "calibration_error"   // EEPROM block unreadable or malformed
	Acquisition        Code = "acquisition_error"   // frame/count readout failed mid-cycle
	InvalidMeasurement Code = "invalid_measurement" // non-physical value (vis <= 0, NaN pixel)

	NotReady      Code = "not_ready"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	Timeout       Code = "timeout"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside the code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches a code and operation to a cause.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// New builds a leaf error with a code and message.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, walking the Unwrap chain,
// defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if c, ok := e.(Code); ok {
			return c
		}
		type coder interface{ Code() Code }
		if x, ok := e.(coder); ok {
			return x.Code()
		}
	}
	return Error
}

// Is reports whether err carries the given code.
func Is(err error, c Code) bool { return Of(err) == c }

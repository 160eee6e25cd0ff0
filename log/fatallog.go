package log

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Fatal outcomes reported by the gluon binary.
var (
	ErrMalformedConfig   = newFatalErrorWithReason("ERR_MALFORMED_CONFIG", "config file is malformed")
	ErrBadFlags          = newFatalErrorWithArgs("ERR_BAD_FLAGS", "bad CLI flags: %v")
	ErrDecodeFailure     = newFatalErrorWithReason("ERR_DECODE_FAILURE", "sketch decode failed")
	ErrUnknownIdentifier = newFatalErrorWithReason("ERR_UNKNOWN_IDENTIFIER", "identifier could not be resolved")
	ErrProtocolTimeout   = newFatalErrorWithReason("ERR_PROTOCOL_TIMEOUT", "peer did not respond in time")
	ErrRootMismatch      = newFatalErrorWithReason("ERR_ROOT_MISMATCH", "reconciled block root differs")
	ErrBlockSource       = newFatalErrorWithArgs("ERR_BLOCK_SOURCE", "could not load block %v: %v")
	ErrSession           = newFatalErrorWithReason("ERR_SESSION", "reconciliation session failed")
)

// FatalError carries a stable code next to the human readable text.
type FatalError struct {
	Code   string
	Text   string
	Args   []any
	Reason error
}

func newFatalErrorWithArgs(code, text string) func(args ...any) *FatalError {
	return func(args ...any) *FatalError {
		return &FatalError{
			Code: code,
			Text: text,
			Args: args,
		}
	}
}

func newFatalErrorWithReason(code, text string) func(reason error) *FatalError {
	return func(reason error) *FatalError {
		return &FatalError{
			Code:   code,
			Text:   text,
			Reason: reason,
		}
	}
}

func (fe FatalError) Error() string {
	if fe.Reason != nil {
		return fmt.Sprintf("%v: %v", fe.Text, fe.Reason)
	}

	if len(fe.Args) != 0 {
		return fmt.Sprintf(fe.Text, fe.Args...)
	}

	return fe.Text
}

func (fe FatalError) Unwrap() error { return fe.Reason }

// MarshalLogObject implements logging encoder for FatalError.
func (fe FatalError) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("code", fe.Code)
	encoder.AddString("error", fe.Error())
	return encoder.AddArray("args", arrayMarshaler(fe.Args))
}

type arrayMarshaler []any

func (args arrayMarshaler) MarshalLogArray(encoder zapcore.ArrayEncoder) error {
	for _, arg := range args {
		if err := encoder.AppendReflected(arg); err != nil {
			return fmt.Errorf("append reflected: %w", err)
		}
	}
	return nil
}

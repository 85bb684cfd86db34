package conv

import "errors"

var (
	// ErrBadParameter reports a caller error in the problem description.
	ErrBadParameter = errors.New("bad parameter")
	// ErrUnsupported reports a valid problem this library cannot construct.
	ErrUnsupported = errors.New("unsupported configuration")
	// ErrMalformedConfig reports a persisted key or value that does not decode.
	ErrMalformedConfig = errors.New("malformed config")
)

type badParameterError struct {
	msg string
}

func (e badParameterError) Error() string {
	return e.msg
}

func (e badParameterError) Unwrap() error {
	return ErrBadParameter
}

func badParameter(format string, args ...any) error {
	return badParameterError{msg: fmtMsg(format, args...)}
}

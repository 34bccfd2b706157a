package errorsx

import "errors"

// reasoned carries the code attached closest to the failure site. Outer
// wrappers never override it.
type reasoned struct {
	err    error
	reason ReasonCode
}

func (e *reasoned) Error() string { return e.err.Error() }
func (e *reasoned) Unwrap() error { return e.err }

// Wrap attaches a reason code to err. Nil stays nil, and an error that
// already carries a reason keeps its original one.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re *reasoned
	if errors.As(err, &re) {
		return err
	}
	return &reasoned{err: err, reason: reason}
}

// Override replaces any reason already on err. For boundaries that
// reclassify a lower layer's failure, where Wrap would keep the inner
// code.
func Override(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	return &reasoned{err: err, reason: reason}
}

// Reason returns the code attached to err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var re *reasoned
	if errors.As(err, &re) {
		return re.reason
	}
	return ReasonUnknown
}

// HasReason reports whether err carries the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

package domain

// Lightweight error helper to define package-level errors inline.
type constErr string

func (e constErr) Error() string { return string(e) }
func errorf(s string) error      { return constErr(s) }

var (
	// ErrMalformedPayload marks a frame whose payload does not fit its codec.
	// The frame is skipped.
	ErrMalformedPayload = errorf("malformed payload")

	// ErrTransportFault covers open, read and cancel failures, including a
	// clean end of stream. The supervisor reconnects.
	ErrTransportFault = errorf("transport fault")

	// ErrUpstreamUnavailable is reported while the relay is neither idle nor
	// running. Handled like ErrTransportFault.
	ErrUpstreamUnavailable = errorf("upstream unavailable")
)

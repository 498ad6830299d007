// Package errkind enumerates the error kinds of spec §7 so the
// Orchestrator can switch on propagated errors instead of matching strings.
package errkind

// Kind tags an error with the propagation policy spec §7 assigns it.
type Kind int

const (
	WireCrcMismatch Kind = iota
	WireShortFrame
	WireTimeout
	AsicNotResponding
	StratumParse
	StratumProtocol
	StratumAuthFailed
	PoolReject
	ConfigMissing
)

func (k Kind) String() string {
	switch k {
	case WireCrcMismatch:
		return "WireCrcMismatch"
	case WireShortFrame:
		return "WireShortFrame"
	case WireTimeout:
		return "WireTimeout"
	case AsicNotResponding:
		return "AsicNotResponding"
	case StratumParse:
		return "StratumParse"
	case StratumProtocol:
		return "StratumProtocol"
	case StratumAuthFailed:
		return "StratumAuthFailed"
	case PoolReject:
		return "PoolReject"
	case ConfigMissing:
		return "ConfigMissing"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with an underlying cause and, for PoolReject, a reason
// string surfaced from the pool.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Kind.String() + ": " + e.Reason
	}
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Reject builds a PoolReject error carrying the pool's rejection reason.
func Reject(reason string) *Error {
	return &Error{Kind: PoolReject, Reason: reason}
}

package world

// ErrorKind tags a router Error per spec.md §7's taxonomy, restricted to
// the kinds the World Router itself produces (the rest — TransportError,
// Timeout, RedemptionError, QueueOverflow — belong to the gateway).
type ErrorKind int

const (
	// ErrValidation is a rejected command or an invalid builder state;
	// user-facing, state is unchanged.
	ErrValidation ErrorKind = iota
	// ErrIllegalCommand is input not accepted in the current
	// ServerSessionState (e.g. a builder mutation sent while Playing).
	ErrIllegalCommand
	// ErrUnknownSession is a dispatch on a session the router has never
	// seen (or has since forgotten).
	ErrUnknownSession
	// ErrInternal marks a recovered panic; spec.md §4.6 requires the
	// session to remain in its prior state and the client to see only the
	// generic internal-error message.
	ErrInternal
)

// Error is the router's user-facing error value. Router failure policy
// (spec.md §4.6): any handler may return one, which becomes a SendOutput
// of kind Error; state is never changed as a side effect of a handler
// failure unless the handler explicitly requests it.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

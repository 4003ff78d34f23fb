package poll

import (
	"errors"
	"fmt"
)

// Error is a domain result code. The numeric values are stable and travel
// over the wire, so they must never be renumbered.
type Error uint32

const (
	ErrPollNotInitialized Error = 1
	ErrAlreadyVoted       Error = 2
	ErrInvalidOption      Error = 3
	ErrAlreadyInitialized Error = 4
	// ErrUnauthorized is reserved for admin-only operations; nothing returns
	// it yet.
	ErrUnauthorized Error = 5
)

// ErrTallyOverflow rejects a vote that would push an option past the largest
// count a tally entry can hold. It is not a wire code.
var ErrTallyOverflow = errors.New("option tally would overflow")

func (e Error) Error() string {
	switch e {
	case ErrPollNotInitialized:
		return "poll is not initialized"
	case ErrAlreadyVoted:
		return "voter has already voted"
	case ErrInvalidOption:
		return "option is not part of the poll"
	case ErrAlreadyInitialized:
		return "poll is already initialized"
	case ErrUnauthorized:
		return "caller is not the poll admin"
	default:
		return fmt.Sprintf("poll error %d", uint32(e))
	}
}

func (e Error) Code() uint32 {
	return uint32(e)
}

// Kind is a snake_case name used in logs, metrics and API payloads.
func (e Error) Kind() string {
	switch e {
	case ErrPollNotInitialized:
		return "poll_not_initialized"
	case ErrAlreadyVoted:
		return "already_voted"
	case ErrInvalidOption:
		return "invalid_option"
	case ErrAlreadyInitialized:
		return "already_initialized"
	case ErrUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// ErrorFromCode maps a wire code back to its Error.
func ErrorFromCode(code uint32) (Error, bool) {
	e := Error(code)
	if e < ErrPollNotInitialized || e > ErrUnauthorized {
		return 0, false
	}
	return e, true
}

package bounty

import (
	"errors"
	"fmt"
)

// Error is a program failure kind. Code and Name are stable and surface
// verbatim through receipts, RPC responses and the CLI.
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

// ErrorName returns the stable kind name.
func (e *Error) ErrorName() string { return e.Name }

// ErrorCode returns the stable numeric code.
func (e *Error) ErrorCode() int { return int(e.Code) }

const errorCodeBase = 6000

func newError(ordinal uint32, name, msg string) *Error {
	return &Error{Code: errorCodeBase + ordinal, Name: name, Msg: msg}
}

var (
	ErrAlreadyInitialized  = newError(0, "AlreadyInitialized", "program config already exists")
	ErrInvalidSequenceID   = newError(1, "InvalidSequenceId", "bounty id does not match the next sequence value")
	ErrInvalidArgument     = newError(2, "InvalidArgument", "invalid argument")
	ErrInsufficientFunds   = newError(3, "InsufficientFunds", "balance cannot cover reward and storage cost")
	ErrUnauthorizedAccess  = newError(4, "UnauthorizedAccess", "you do not have permission to perform this action")
	ErrInvalidBountyStatus = newError(5, "InvalidBountyStatus", "invalid bounty status for this operation")
	ErrAddressMismatch     = newError(6, "AddressMismatch", "account does not match its derived address")
	ErrBountyNotFound      = newError(7, "BountyNotFound", "bounty not found")
	ErrNotInitialized      = newError(8, "NotInitialized", "program config does not exist")
	ErrInvalidInstruction  = newError(9, "InvalidInstruction", "malformed instruction")
)

var allErrors = []*Error{
	ErrAlreadyInitialized,
	ErrInvalidSequenceID,
	ErrInvalidArgument,
	ErrInsufficientFunds,
	ErrUnauthorizedAccess,
	ErrInvalidBountyStatus,
	ErrAddressMismatch,
	ErrBountyNotFound,
	ErrNotInitialized,
	ErrInvalidInstruction,
}

// AsError extracts the program error kind from err.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// ErrorByName resolves an error kind from its stable name. Clients use it to
// turn a receipt back into a comparable sentinel.
func ErrorByName(name string) (*Error, bool) {
	for _, e := range allErrors {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

func fail(kind *Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{kind}, args...)...)
}

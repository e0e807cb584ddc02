package elektroid

import (
	"errors"
	"fmt"
)

// Error taxonomy (§7). These are sentinel errors to be matched with
// errors.Is; wrap them with fmt.Errorf("...: %w", ErrProtocol) for context.
var (
	// ErrIO marks a fatal port read/write failure, poll error, or
	// disconnect. A backend that returns ErrIO is no longer usable.
	ErrIO = errors.New("elektroid: I/O error")

	// ErrTimeout means no byte arrived within the transfer's budget.
	// Recoverable by the caller; does not invalidate the backend.
	ErrTimeout = errors.New("elektroid: timeout")

	// ErrCancelled means the caller cleared the transfer's active flag.
	ErrCancelled = errors.New("elektroid: cancelled")

	// ErrProtocol covers a reply status byte of zero, an unexpected
	// opcode, or a missing vendor header after retries.
	ErrProtocol = errors.New("elektroid: protocol error")

	ErrNotFound     = errors.New("elektroid: not found")
	ErrExists       = errors.New("elektroid: already exists")
	ErrNotDir       = errors.New("elektroid: not a directory")
	ErrNotSupported = errors.New("elektroid: operation not supported")

	// ErrInvalidArg covers string transcoding failure, out-of-range
	// slot indices, and malformed sequence text.
	ErrInvalidArg = errors.New("elektroid: invalid argument")
)

// checkMsgStatus inspects the generic status byte every filesystem-ops,
// data-transfer and sample-transfer reply carries at offset 5: 1 for
// success, 0 for failure with a NUL-terminated CP1252 error string
// starting at offset 6. Grounded on connector_get_msg_status/
// connector_get_msg_string in connector.c, called ahead of every such
// reply in the original before any other field in it is trusted.
func checkMsgStatus(reply []byte) error {
	if len(reply) < 6 {
		return fmt.Errorf("%w: reply too short for status byte", ErrProtocol)
	}
	if reply[5] != 0 {
		return nil
	}
	msg, _, err := cp1252CString(reply, 6)
	if err != nil || msg == "" {
		return fmt.Errorf("%w: device reported failure", ErrProtocol)
	}
	return fmt.Errorf("%w: %s", ErrProtocol, msg)
}

package recon

import "errors"

var (
	// ErrDecodeFailure is returned when a difference sketch could not be
	// fully peeled.
	ErrDecodeFailure = errors.New("recon: sketch decode failure")
	// ErrProtocolTimeout is returned when an expected message did not
	// arrive in time.
	ErrProtocolTimeout = errors.New("recon: protocol timeout")
	// ErrRootMismatch is returned when the fully folded tree does not match
	// the announced root.
	ErrRootMismatch = errors.New("recon: root mismatch")
	// ErrUnexpectedMessage is returned for messages the role does not accept
	// or that arrive twice.
	ErrUnexpectedMessage = errors.New("recon: unexpected message")
	// ErrConnectionClosed is returned when the peer closed the stream while
	// a message was expected.
	ErrConnectionClosed = errors.New("recon: connection closed")
	// ErrMissingPayload is returned when a block item is not in the pool.
	ErrMissingPayload = errors.New("recon: missing payload")
)

package hadb

import (
	"errors"
	"fmt"
)

// ErrConfig is the class of configuration errors: invalid limits,
// duplicate servers, malformed files.
var ErrConfig = errors.New("invalid configuration")

// ErrConnLost marks errors after which a connection's session is gone.
// Transports wrap their native error with it; such connections are
// dropped instead of reused.
var ErrConnLost = errors.New("connection lost")

// ConnectError is returned when a handshake with a server fails.
// Code and Msg carry the transport's native error.
type ConnectError struct {
	Server string
	Code   uint16
	Msg    string
	Err    error
}

// Error converts a ConnectError to a string.
func (e *ConnectError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("connect to %s: %s (%d)", e.Server, e.Msg, e.Code)
	}
	return fmt.Sprintf("connect to %s: %s", e.Server, e.Msg)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Temporary returns true if the failure is network level, i.e. the
// endpoint may be down rather than misconfigured.
//
// Currently it returns true when:
//
// - the server could not be reached or the connection was lost
//
// - the server refused the connection because of too many connections
//
// - no native code is known and the failure is not a configuration one
func (e *ConnectError) Temporary() bool {
	if errors.Is(e.Err, ErrConfig) {
		return false
	}
	switch e.Code {
	case 0, ErrCodeConnectionError, ErrCodeConnHostError, ErrCodeServerGone,
		ErrCodeServerLost, ErrCodeTooManyConnections:
		return true
	default:
		return false
	}
}

// Native client and server error codes the core looks at.
const (
	ErrCodeTooManyConnections = 1040 // Too many connections
	ErrCodeAccessDenied       = 1045 // Access denied for user '%s'@'%s'
	ErrCodeConnectionError    = 2002 // Can't connect to local server through socket
	ErrCodeConnHostError      = 2003 // Can't connect to server on '%s'
	ErrCodeServerGone         = 2006 // Server has gone away
	ErrCodeServerLost         = 2013 // Lost connection to server during query
)

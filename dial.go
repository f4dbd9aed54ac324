package hadb

import (
	"context"
	"time"
)

// QueryMode tells the transport how to run a statement.
type QueryMode uint8

const (
	// ModeStore buffers the whole result client side.
	ModeStore QueryMode = 0
	// ModeUse streams the result; the caller reads it row by row.
	ModeUse QueryMode = 1 << 0
	// ModeAsync submits the statement without waiting for its result.
	// The result is collected with Handle.Reap once the connection is
	// reported ready by a Poller.
	ModeAsync QueryMode = 1 << 1
)

// Buffered reports whether the result is stored client side.
func (m QueryMode) Buffered() bool { return m&ModeUse == 0 }

// Async reports whether the statement is submitted asynchronously.
func (m QueryMode) Async() bool { return m&ModeAsync != 0 }

func (m QueryMode) String() string {
	s := "store"
	if !m.Buffered() {
		s = "use"
	}
	if m.Async() {
		s += "+async"
	}
	return s
}

// DialOpts is the resolved set of parameters handed to a Dialer.
type DialOpts struct {
	Hostname   string
	Port       int
	Socket     string
	Username   string
	Password   string
	Database   string
	Charset    string
	Persistent bool
	// Options holds the transport options with the autocommit
	// directive already merged into OptInitCommand.
	Options map[Option]string
}

// Dialer is the interface that wraps a method to open a transport
// handle. It is the connection factory of the transport collaborator.
type Dialer interface {
	// Dial performs the handshake. Failures should be reported as
	// *ConnectError carrying the native code and message.
	Dial(ctx context.Context, opts DialOpts) (Handle, error)
}

// Handle is one live transport session.
type Handle interface {
	// Session returns the server-side session identifier. It is stable
	// for the life of the handle.
	Session() uint64
	// Query runs text. In async mode it returns right after submission
	// and the result must be collected with Reap.
	Query(ctx context.Context, text string, mode QueryMode) (any, error)
	// Reap collects the result of the pending asynchronous query.
	Reap() (any, error)
	// Escape escapes text for use inside a quoted string literal.
	Escape(text string) string
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Status returns the state left by the latest call.
	Status() Status
	Close() error
}

// Status is a read-only snapshot of a handle after a call.
type Status struct {
	AffectedRows int64
	InsertID     int64
	FieldCount   int
	WarningCount int
	ErrNo        uint16
	Error        string
	SQLState     string
	Info         string
}

// PollResult splits the polled connections into readiness buckets.
type PollResult struct {
	// Ready connections have a result to reap.
	Ready []*Connection
	// Errored connections failed while their query was in flight.
	Errored []*Connection
	// Rejected connections were not valid poll targets.
	Rejected []*Connection
}

// Poller is the readiness primitive of the transport collaborator.
type Poller interface {
	// Poll waits at most timeout for at least one of conns to become
	// ready or errored. An empty result means the wait expired.
	Poll(ctx context.Context, conns []*Connection, timeout time.Duration) (PollResult, error)
}

package hadb

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConnID identifies a Connection. It is derived from the transport
// session and is comparable, so it can be used as a map key.
type ConnID struct {
	Endpoint string
	Session  uint64
}

func (id ConnID) String() string {
	return fmt.Sprintf("%s#%d", id.Endpoint, id.Session)
}

// Connection owns exactly one transport handle.
type Connection struct {
	id     ConnID
	handle Handle
	desc   *ServerDescription
}

// Connect opens a connection described by desc. The autocommit mode, if
// set, is merged into the init command before the handshake.
func Connect(ctx context.Context, dialer Dialer, desc *ServerDescription) (*Connection, error) {
	opts := DialOpts{
		Hostname:   desc.Hostname(),
		Port:       desc.Port(),
		Socket:     desc.Socket(),
		Username:   desc.Username(),
		Password:   desc.Password(),
		Database:   desc.Database(),
		Persistent: desc.Persistent(),
		Options:    desc.Options(),
	}
	if cs, ok := desc.Charset(); ok {
		opts.Charset = cs
	}
	if ac, ok := desc.Autocommit(); ok {
		opts.Options[OptInitCommand] = MergeInitCommand(opts.Options[OptInitCommand], ac)
	}

	handle, err := dialer.Dial(ctx, opts)
	if err != nil {
		var cerr *ConnectError
		if errors.As(err, &cerr) {
			if cerr.Server == "" {
				cerr.Server = desc.String()
			}
			return nil, cerr
		}
		return nil, &ConnectError{Server: desc.String(), Msg: err.Error(), Err: err}
	}

	return NewConnection(desc, handle), nil
}

// NewConnection wraps an already open handle. Its id is taken from
// the description's endpoint and the handle's session.
func NewConnection(desc *ServerDescription, handle Handle) *Connection {
	return &Connection{
		id:     ConnID{Endpoint: desc.Endpoint(), Session: handle.Session()},
		handle: handle,
		desc:   desc,
	}
}

// MergeInitCommand appends the autocommit directive to an init command.
func MergeInitCommand(initCommand string, autocommit bool) string {
	directive := "SET AUTOCOMMIT = 0"
	if autocommit {
		directive = "SET AUTOCOMMIT = 1"
	}
	initCommand = strings.TrimRight(strings.TrimSpace(initCommand), ";")
	if initCommand == "" {
		return directive
	}
	return initCommand + ";" + directive
}

func (c *Connection) ID() ConnID { return c.id }
func (c *Connection) Handle() Handle { return c.handle }
func (c *Connection) Description() *ServerDescription { return c.desc }

func (c *Connection) Query(ctx context.Context, text string, mode QueryMode) (any, error) {
	return c.handle.Query(ctx, text, mode)
}

// Reap collects the result of the pending asynchronous query.
func (c *Connection) Reap() (any, error) {
	return c.handle.Reap()
}

func (c *Connection) Escape(text string) string {
	return c.handle.Escape(text)
}

func (c *Connection) Begin(ctx context.Context) error {
	return c.handle.Begin(ctx)
}

func (c *Connection) Commit(ctx context.Context) error {
	return c.handle.Commit(ctx)
}

func (c *Connection) Rollback(ctx context.Context) error {
	return c.handle.Rollback(ctx)
}

func (c *Connection) Status() Status {
	return c.handle.Status()
}

func (c *Connection) Close() error {
	return c.handle.Close()
}

func (c *Connection) String() string {
	return c.id.String()
}

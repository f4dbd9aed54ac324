// Package dispatcher multiplexes synchronous and asynchronous queries
// over a bounded set of connections opened from a server pool.
//
// A Dispatcher is not safe for concurrent use: it is driven by a single
// goroutine and only blocks inside Poll, directly or through Query,
// WaitForQuery and GetNextAsyncResult. Stats may be read from any
// goroutine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/hadb-go/hadb"
	"github.com/hadb-go/hadb/pool"
)

// Opts configures a Dispatcher. Zero values select the defaults.
type Opts struct {
	// MaxConn is the ceiling of owned connections. DefaultMaxConn when zero.
	MaxConn int
	// PollWait is the wait used when a caller passes a zero wait.
	// DefaultPollWait when zero.
	PollWait time.Duration
	// ConnectAttempts bounds the servers tried to open one connection.
	// The pool size when zero.
	ConnectAttempts int
	// NewBackOff returns the delay policy between connect attempts.
	NewBackOff func() backoff.BackOff
	// MarkDownOnConnectError marks a server down after a network level
	// connect failure.
	MarkDownOnConnectError bool
	Logger                 hadb.Logger
}

// Result is the outcome of a synchronous query.
type Result struct {
	QueryID QueryID
	ConnID  hadb.ConnID
	// Data is the transport result, passed through unchanged.
	Data any
	// Status is the connection state right after the call.
	Status hadb.Status
}

// AsyncResult is the outcome of an asynchronous query. Err is a
// *QueryError when the query failed.
type AsyncResult struct {
	QueryID QueryID
	ConnID  hadb.ConnID
	Data    any
	Err     error
}

type queuedQuery struct {
	id   QueryID
	text string
}

type counters struct {
	opened    uint64
	queries   uint64
	completed uint64
	failed    uint64
}

// Dispatcher is the pool manager. Every owned connection is in exactly
// one of the idle set, the active set or the transaction pin.
type Dispatcher struct {
	id      uuid.UUID
	servers pool.Pooler
	poller  hadb.Poller
	opts    Opts
	logger  hadb.Logger
	maxConn int

	idle     *orderedMap[hadb.ConnID, *hadb.Connection]
	active   *orderedMap[hadb.ConnID, *hadb.Connection]
	inFlight map[hadb.ConnID]QueryID
	queue    []queuedQuery
	ready    *orderedMap[QueryID, *AsyncResult]

	currentID  QueryID
	tx         *hadb.Connection
	lastUsed   *hadb.Connection
	lastStatus hadb.Status
	closed     bool
	counters   counters

	statsMu sync.Mutex
	stats   Stats
}

// New creates a dispatcher over servers. poller is the readiness
// primitive of the transport the servers dial with.
func New(servers pool.Pooler, poller hadb.Poller, opts Opts) *Dispatcher {
	if opts.MaxConn < 1 {
		opts.MaxConn = DefaultMaxConn
	}
	if opts.PollWait <= 0 {
		opts.PollWait = DefaultPollWait
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	if opts.Logger == nil {
		opts.Logger = hadb.NopLogger{}
	}
	d := &Dispatcher{
		id:       uuid.New(),
		servers:  servers,
		poller:   poller,
		opts:     opts,
		logger:   opts.Logger,
		maxConn:  opts.MaxConn,
		idle:     newOrderedMap[hadb.ConnID, *hadb.Connection](),
		active:   newOrderedMap[hadb.ConnID, *hadb.Connection](),
		inFlight: make(map[hadb.ConnID]QueryID),
		ready:    newOrderedMap[QueryID, *AsyncResult](),
	}
	d.updateStats()
	return d
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	return b
}

// ID returns the dispatcher instance id attached to its log entries.
func (d *Dispatcher) ID() uuid.UUID {
	return d.id
}

// SetMaxConn changes the connection ceiling. Surplus idle connections
// are closed now; busy ones are closed when released.
func (d *Dispatcher) SetMaxConn(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxConn, n)
	}
	defer d.updateStats()

	d.maxConn = n
	for d.owned() > n && d.idle.len() > 0 {
		_, conn, _ := d.idle.popFront()
		d.closeConn(conn)
	}
	return nil
}

func (d *Dispatcher) MaxConn() int {
	return d.maxConn
}

// NbConn returns the number of owned connections.
func (d *Dispatcher) NbConn() int {
	return d.owned()
}

// HasAvailableConnections reports whether a query could start without
// waiting.
func (d *Dispatcher) HasAvailableConnections() bool {
	return d.idle.len() > 0 || d.owned() < d.maxConn
}

// LastStatus returns the snapshot taken after the latest synchronous
// call.
func (d *Dispatcher) LastStatus() hadb.Status {
	return d.lastStatus
}

// Close closes every owned connection and drops queued queries.
func (d *Dispatcher) Close() error {
	if d.closed {
		return ErrClosed
	}
	defer d.updateStats()

	d.closed = true
	conns := append(d.idle.values(), d.active.values()...)
	if d.tx != nil {
		conns = append(conns, d.tx)
	}
	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", conn.ID(), err))
		}
	}
	if len(d.queue) > 0 {
		d.log(hadb.LevelWarning, "dropping {count} queued queries", hadb.Fields{"count": len(d.queue)})
	}
	d.idle.clear()
	d.active.clear()
	d.inFlight = make(map[hadb.ConnID]QueryID)
	d.queue = nil
	d.tx = nil
	d.lastUsed = nil

	return multierror.Append(nil, errs...).ErrorOrNil()
}

func (d *Dispatcher) owned() int {
	n := d.idle.len() + d.active.len()
	if d.tx != nil {
		n++
	}
	return n
}

// idleConn returns an idle connection, opening one when under the
// ceiling. The connection is left in the idle set. With preferLast the
// connection of the previous synchronous call is reused if idle.
func (d *Dispatcher) idleConn(ctx context.Context, preferLast bool) (*hadb.Connection, error) {
	if preferLast && d.lastUsed != nil && d.idle.has(d.lastUsed.ID()) {
		return d.lastUsed, nil
	}
	if _, conn, ok := d.idle.front(); ok {
		return conn, nil
	}
	if d.owned() >= d.maxConn {
		return nil, ErrNoConnectionAvailable
	}
	conn, err := d.open(ctx)
	if err != nil {
		return nil, err
	}
	d.idle.put(conn.ID(), conn)
	return conn, nil
}

// open connects to a server chosen by the pool, trying other servers
// on connect failures. Selection failures are not retried.
func (d *Dispatcher) open(ctx context.Context) (*hadb.Connection, error) {
	attempts := d.opts.ConnectAttempts
	if attempts <= 0 {
		attempts = max(d.servers.Len(), 1)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(d.opts.NewBackOff(), uint64(attempts-1)), ctx)

	conn, err := backoff.RetryNotifyWithData(func() (*hadb.Connection, error) {
		srv, err := d.servers.GetServer()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		conn, err := srv.NewConnection(ctx)
		if err != nil {
			d.connectFailed(srv, err)
			return nil, err
		}
		return conn, nil
	}, b, func(err error, next time.Duration) {
		d.log(hadb.LevelDebug, "retrying connect in {delay}", hadb.Fields{"delay": next, "error": err})
	})
	if err != nil {
		return nil, err
	}

	d.counters.opened++
	d.log(hadb.LevelDebug, "connection {conn} opened", hadb.Fields{"conn": conn.ID()})
	return conn, nil
}

func (d *Dispatcher) connectFailed(srv *pool.Server, err error) {
	d.log(hadb.LevelError, "connect to {server} failed: {error}", hadb.Fields{"server": srv, "error": err})
	if !d.opts.MarkDownOnConnectError {
		return
	}
	var cerr *hadb.ConnectError
	if errors.As(err, &cerr) && !cerr.Temporary() {
		return
	}
	if _, err := d.servers.MarkServerDown(srv.ID()); err != nil {
		d.log(hadb.LevelWarning, "cannot mark {server} down: {error}", hadb.Fields{"server": srv, "error": err})
	}
}

func (d *Dispatcher) closeConn(conn *hadb.Connection) {
	if d.lastUsed == conn {
		d.lastUsed = nil
	}
	if err := conn.Close(); err != nil {
		d.log(hadb.LevelWarning, "close {conn}: {error}", hadb.Fields{"conn": conn.ID(), "error": err})
		return
	}
	d.log(hadb.LevelDebug, "connection {conn} closed", hadb.Fields{"conn": conn.ID()})
}

// release hands back a connection already taken out of the active set
// or the transaction pin. It goes idle unless the ceiling was lowered
// below what is still owned, in which case it is closed.
func (d *Dispatcher) release(conn *hadb.Connection) {
	if d.owned() >= d.maxConn {
		d.closeConn(conn)
		return
	}
	d.idle.put(conn.ID(), conn)
}

// discard drops a connection whose session is gone so the next
// acquisition opens a fresh one.
func (d *Dispatcher) discard(conn *hadb.Connection, cause error) {
	id := conn.ID()
	d.idle.delete(id)
	d.active.delete(id)
	delete(d.inFlight, id)
	if d.tx == conn {
		d.tx = nil
	}
	d.log(hadb.LevelWarning, "dropping {conn}: {error}", hadb.Fields{"conn": id, "error": cause})
	d.closeConn(conn)
}

func (d *Dispatcher) nextQueryID() QueryID {
	if d.currentID == maxQueryID {
		d.currentID = 0
	}
	d.currentID++
	d.counters.queries++
	return d.currentID
}

func (d *Dispatcher) log(level hadb.Level, msg string, fields hadb.Fields) {
	if fields == nil {
		fields = hadb.Fields{}
	}
	fields["dispatcher"] = d.id
	d.logger.Log(level, msg, fields)
}

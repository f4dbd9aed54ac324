// Package mysql is the MySQL transport of hadb, built on
// github.com/go-sql-driver/mysql. Each handle owns one *sql.Conn;
// asynchronous queries run on a goroutine per handle and are awaited
// with Poll.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	my "github.com/go-mysql/errors"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"

	"github.com/hadb-go/hadb"
)

// DefaultMaxIdlePersistent is the idle connection limit of a shared
// persistent *sql.DB.
const DefaultMaxIdlePersistent = 8

// Opts configures a Transport.
type Opts struct {
	// MaxIdlePersistent bounds the sessions kept per persistent
	// endpoint. DefaultMaxIdlePersistent when zero.
	MaxIdlePersistent int
	Logger            hadb.Logger
}

// Transport dials MySQL sessions and polls their asynchronous queries.
// It implements hadb.Dialer and hadb.Poller and is safe for concurrent
// use.
type Transport struct {
	opts   Opts
	logger hadb.Logger
	openDB func(cfg *gomysql.Config) (*sql.DB, error)

	mu     sync.Mutex
	shared map[string]*sql.DB
	closed bool
}

var (
	_ hadb.Dialer = (*Transport)(nil)
	_ hadb.Poller = (*Transport)(nil)
)

// ErrTransportClosed is returned by Dial after Close.
var ErrTransportClosed = errors.New("transport is closed")

func New(opts Opts) *Transport {
	if opts.MaxIdlePersistent <= 0 {
		opts.MaxIdlePersistent = DefaultMaxIdlePersistent
	}
	if opts.Logger == nil {
		opts.Logger = hadb.NopLogger{}
	}
	return &Transport{
		opts:   opts,
		logger: opts.Logger,
		openDB: openDB,
		shared: make(map[string]*sql.DB),
	}
}

func openDB(cfg *gomysql.Config) (*sql.DB, error) {
	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

// Dial opens a session. Persistent sessions are taken from a *sql.DB
// shared by every persistent dial with the same parameters and go back
// to it on Close.
func (t *Transport) Dial(ctx context.Context, opts hadb.DialOpts) (hadb.Handle, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, &hadb.ConnectError{Msg: err.Error(), Err: err}
	}

	db, owned, err := t.db(cfg, opts.Persistent)
	if err != nil {
		return nil, connectError(err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		if owned {
			db.Close()
		}
		return nil, connectError(err)
	}

	h := &handle{t: t, conn: conn}
	if owned {
		h.db = db
	}
	if err := h.init(ctx, opts); err != nil {
		h.release()
		return nil, connectError(err)
	}

	t.logger.Log(hadb.LevelDebug, "session {session} opened on {addr}", hadb.Fields{
		"session":    h.session,
		"addr":       cfg.Addr,
		"persistent": opts.Persistent,
	})
	return h, nil
}

func (t *Transport) db(cfg *gomysql.Config, persistent bool) (*sql.DB, bool, error) {
	if !persistent {
		db, err := t.openDB(cfg)
		if err != nil {
			return nil, false, err
		}
		db.SetMaxOpenConns(1)
		return db, true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, false, ErrTransportClosed
	}
	key := cfg.FormatDSN()
	if db, ok := t.shared[key]; ok {
		return db, false, nil
	}
	db, err := t.openDB(cfg)
	if err != nil {
		return nil, false, err
	}
	db.SetMaxIdleConns(t.opts.MaxIdlePersistent)
	t.shared[key] = db
	return db, false, nil
}

// Close closes the shared persistent pools. Sessions still open keep
// working until closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	t.closed = true

	var errs *multierror.Error
	for key, db := range t.shared {
		if err := db.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		delete(t.shared, key)
	}
	return errs.ErrorOrNil()
}

// connectError converts a driver error into a *hadb.ConnectError
// carrying the native code.
func connectError(err error) error {
	var cerr *hadb.ConnectError
	if errors.As(err, &cerr) {
		return cerr
	}
	cerr = &hadb.ConnectError{Msg: err.Error(), Err: err}

	var merr *gomysql.MySQLError
	switch {
	case errors.As(err, &merr):
		cerr.Code = merr.Number
		cerr.Msg = merr.Message
	case errors.Is(err, ErrTransportClosed):
		cerr.Err = fmt.Errorf("%w: %w", hadb.ErrConfig, err)
	default:
		if ok, myerr := my.Error(err); ok {
			switch myerr {
			case my.ErrCannotConnect:
				cerr.Code = hadb.ErrCodeConnHostError
			case my.ErrConnLost:
				cerr.Code = hadb.ErrCodeServerLost
			}
		}
	}
	return cerr
}

// errorStatus fills the error part of a status from a query error.
func errorStatus(err error) hadb.Status {
	st := hadb.Status{AffectedRows: -1, Error: err.Error()}
	var merr *gomysql.MySQLError
	if errors.As(err, &merr) {
		st.ErrNo = merr.Number
		st.Error = merr.Message
		st.SQLState = string(merr.SQLState[:])
		return st
	}
	st.ErrNo = my.MySQLErrorCode(err)
	return st
}

// connLost reports whether err means the session itself is unusable.
func connLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, hadb.ErrConnLost) || errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if ok, myerr := my.Error(err); ok {
		return myerr == my.ErrConnLost || myerr == my.ErrCannotConnect
	}
	switch my.MySQLErrorCode(err) {
	case hadb.ErrCodeServerGone, hadb.ErrCodeServerLost:
		return true
	}
	return false
}

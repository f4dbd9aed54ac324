package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/hadb-go/hadb"
)

// BeginTransaction opens a transaction and pins its connection. Until
// Commit or Rollback every synchronous query runs on it. Asynchronous
// queries never join the transaction.
func (d *Dispatcher) BeginTransaction(ctx context.Context) error {
	if d.closed {
		return ErrClosed
	}
	if d.tx != nil {
		return ErrInTransaction
	}
	defer d.updateStats()

	conn, err := d.syncConn(ctx, 0)
	if err != nil {
		return err
	}
	if err := conn.Begin(ctx); err != nil {
		d.lastStatus = conn.Status()
		return fmt.Errorf("begin transaction on %s: %w", conn.ID(), err)
	}
	d.idle.delete(conn.ID())
	d.tx = conn
	d.lastUsed = conn
	d.lastStatus = conn.Status()
	d.log(hadb.LevelDebug, "transaction started on {conn}", hadb.Fields{"conn": conn.ID()})
	return nil
}

// Commit commits the open transaction and releases its connection.
func (d *Dispatcher) Commit(ctx context.Context) error {
	return d.endTransaction(ctx, "commit", (*hadb.Connection).Commit)
}

// Rollback rolls back the open transaction and releases its connection.
func (d *Dispatcher) Rollback(ctx context.Context) error {
	return d.endTransaction(ctx, "rollback", (*hadb.Connection).Rollback)
}

func (d *Dispatcher) endTransaction(ctx context.Context, op string,
	end func(*hadb.Connection, context.Context) error) error {
	if d.tx == nil {
		return ErrNoTransaction
	}
	defer d.updateStats()

	conn := d.tx
	d.tx = nil
	err := end(conn, ctx)
	d.lastStatus = conn.Status()
	d.lastUsed = conn
	if errors.Is(err, hadb.ErrConnLost) {
		d.discard(conn, err)
	} else {
		d.release(conn)
	}
	if err != nil {
		return fmt.Errorf("%s on %s: %w", op, conn.ID(), err)
	}
	d.log(hadb.LevelDebug, "transaction on {conn} ended by {op}", hadb.Fields{"conn": conn.ID(), "op": op})
	return nil
}

// IsInTransaction reports whether a transaction is open.
func (d *Dispatcher) IsInTransaction() bool {
	return d.tx != nil
}

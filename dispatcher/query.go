package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/hadb-go/hadb"
)

// Query runs text synchronously. Inside a transaction the pinned
// connection is used. Otherwise the connection of the previous
// synchronous call is reused when idle, then any idle connection, then
// a new one. When the ceiling is reached Query polls once for at most
// maxWait and retries before failing with ErrNoConnectionAvailable.
func (d *Dispatcher) Query(ctx context.Context, text string, buffered bool, maxWait time.Duration) (*Result, error) {
	if d.closed {
		return nil, ErrClosed
	}
	defer d.updateStats()

	conn := d.tx
	if conn == nil {
		var err error
		if conn, err = d.syncConn(ctx, maxWait); err != nil {
			return nil, err
		}
	}

	mode := hadb.ModeStore
	if !buffered {
		mode = hadb.ModeUse
	}
	qid := d.nextQueryID()
	data, err := conn.Query(ctx, text, mode)
	d.lastUsed = conn
	d.lastStatus = conn.Status()
	if err != nil {
		d.counters.failed++
		qerr := &QueryError{QueryID: qid, ConnID: conn.ID(), Err: err}
		d.log(hadb.LevelError, "{error}", hadb.Fields{"error": qerr})
		if errors.Is(err, hadb.ErrConnLost) {
			d.discard(conn, err)
		}
		return nil, qerr
	}
	d.counters.completed++

	return &Result{
		QueryID: qid,
		ConnID:  conn.ID(),
		Data:    data,
		Status:  d.lastStatus,
	}, nil
}

func (d *Dispatcher) syncConn(ctx context.Context, maxWait time.Duration) (*hadb.Connection, error) {
	conn, err := d.idleConn(ctx, true)
	if !errors.Is(err, ErrNoConnectionAvailable) {
		return conn, err
	}
	if _, err := d.Poll(ctx, maxWait, false); err != nil {
		return nil, err
	}
	return d.idleConn(ctx, true)
}

// AsyncQuery submits text asynchronously and returns its query id. When
// no connection can be acquired the query is queued and launched by a
// later Poll; queued is then true. A submission failure is recorded as
// the query's result, not returned.
func (d *Dispatcher) AsyncQuery(ctx context.Context, text string) (qid QueryID, queued bool, err error) {
	if d.closed {
		return 0, false, ErrClosed
	}
	defer d.updateStats()

	conn, err := d.idleConn(ctx, false)
	if errors.Is(err, ErrNoConnectionAvailable) {
		qid = d.nextQueryID()
		d.queue = append(d.queue, queuedQuery{id: qid, text: text})
		d.log(hadb.LevelDebug, "query {query_id} queued", hadb.Fields{"query_id": qid, "queued": len(d.queue)})
		return qid, true, nil
	}
	if err != nil {
		return 0, false, err
	}

	qid = d.nextQueryID()
	d.launch(ctx, qid, text, conn)
	return qid, false, nil
}

// launch submits text on an idle connection and moves it to the active
// set. The query was not sent when the submission reports a lost
// session, so it moves on to another connection.
func (d *Dispatcher) launch(ctx context.Context, qid QueryID, text string, conn *hadb.Connection) {
	id := conn.ID()
	for attempt := 0; ; attempt++ {
		_, err := conn.Query(ctx, text, hadb.ModeStore|hadb.ModeAsync)
		if err == nil {
			break
		}
		if !errors.Is(err, hadb.ErrConnLost) || attempt >= d.maxConn {
			d.fail(qid, id, err)
			return
		}
		d.discard(conn, err)
		next, nerr := d.idleConn(ctx, false)
		if nerr != nil {
			d.fail(qid, id, err)
			return
		}
		conn, id = next, next.ID()
	}
	d.idle.delete(id)
	d.active.put(id, conn)
	d.inFlight[id] = qid
	d.log(hadb.LevelDebug, "query {query_id} launched on {conn}", hadb.Fields{"query_id": qid, "conn": id})
}

// launchQueued starts queued queries in FIFO order while connections
// can be acquired. If a connection cannot be opened and nothing is in
// flight, the queued queries can never run and are failed.
func (d *Dispatcher) launchQueued(ctx context.Context) {
	for len(d.queue) > 0 {
		conn, err := d.idleConn(ctx, false)
		if errors.Is(err, ErrNoConnectionAvailable) {
			return
		}
		if err != nil {
			if d.active.len() > 0 {
				d.log(hadb.LevelWarning, "cannot launch queued query: {error}", hadb.Fields{"error": err})
				return
			}
			for _, q := range d.queue {
				d.fail(q.id, hadb.ConnID{}, err)
			}
			d.queue = nil
			return
		}
		q := d.queue[0]
		d.queue[0] = queuedQuery{}
		d.queue = d.queue[1:]
		d.launch(ctx, q.id, q.text, conn)
	}
}

// Poll waits at most maxWait for in-flight queries to complete and
// returns how many did. A zero maxWait means the configured PollWait.
// Results of completed queries become available to WaitForQuery and
// GetNextAsyncResult; failed ones carry a *QueryError. With
// launchQueued, queued queries are started on the freed connections.
//
// Poll fails with a *RejectedError if the transport rejects a
// connection the dispatcher holds as active.
func (d *Dispatcher) Poll(ctx context.Context, maxWait time.Duration, launchQueued bool) (int, error) {
	if d.active.len() == 0 {
		return 0, nil
	}
	defer d.updateStats()

	if maxWait <= 0 {
		maxWait = d.opts.PollWait
	}
	res, err := d.poller.Poll(ctx, d.active.values(), maxWait)
	if err != nil {
		return 0, err
	}

	if len(res.Rejected) > 0 {
		rerr := &RejectedError{}
		for _, conn := range res.Rejected {
			rerr.ConnIDs = append(rerr.ConnIDs, conn.ID())
		}
		d.log(hadb.LevelCritical, "{error}", hadb.Fields{"error": rerr})
		return 0, rerr
	}

	completed := 0
	for _, conn := range res.Errored {
		_, err := conn.Reap()
		if err == nil {
			err = ErrConnectionErrored
		}
		if d.complete(conn, nil, err) {
			completed++
		}
	}
	for _, conn := range res.Ready {
		data, err := conn.Reap()
		if d.complete(conn, data, err) {
			completed++
		}
	}

	if launchQueued && completed > 0 {
		d.launchQueued(ctx)
	}
	return completed, nil
}

// complete stores the result of the query in flight on conn and
// releases conn. A connection whose session was lost is dropped.
func (d *Dispatcher) complete(conn *hadb.Connection, data any, err error) bool {
	id := conn.ID()
	if _, ok := d.active.delete(id); !ok {
		return false
	}
	qid := d.inFlight[id]
	delete(d.inFlight, id)
	if errors.Is(err, hadb.ErrConnLost) {
		d.discard(conn, err)
	} else {
		d.release(conn)
	}

	if err != nil {
		d.fail(qid, id, err)
		return true
	}
	d.counters.completed++
	d.ready.put(qid, &AsyncResult{QueryID: qid, ConnID: id, Data: data})
	return true
}

func (d *Dispatcher) fail(qid QueryID, id hadb.ConnID, err error) {
	qerr := &QueryError{QueryID: qid, ConnID: id, Err: err}
	d.counters.failed++
	d.ready.put(qid, &AsyncResult{QueryID: qid, ConnID: id, Err: qerr})
	d.log(hadb.LevelError, "{error}", hadb.Fields{"error": qerr})
}

// GetNextAsyncResult returns the oldest ready result. When none is
// ready it polls once for at most maxWait. ok is false if still no
// result is available.
func (d *Dispatcher) GetNextAsyncResult(ctx context.Context, maxWait time.Duration) (*AsyncResult, bool, error) {
	defer d.updateStats()

	if _, res, ok := d.ready.popFront(); ok {
		return res, true, nil
	}
	d.launchQueued(ctx)
	if _, err := d.Poll(ctx, maxWait, true); err != nil {
		return nil, false, err
	}
	if _, res, ok := d.ready.popFront(); ok {
		return res, true, nil
	}
	return nil, false, nil
}

// WaitForQuery polls until the result of qid is ready or maxWait has
// elapsed. A zero maxWait means the configured PollWait. ok is false
// when the deadline passed, or right away when qid is neither ready,
// in flight nor queued.
func (d *Dispatcher) WaitForQuery(ctx context.Context, qid QueryID, maxWait time.Duration) (*AsyncResult, bool, error) {
	defer d.updateStats()

	if maxWait <= 0 {
		maxWait = d.opts.PollWait
	}
	deadline := time.Now().Add(maxWait)
	for {
		if res, ok := d.ready.delete(qid); ok {
			return res, true, nil
		}
		if !d.pending(qid) {
			return nil, false, nil
		}
		d.launchQueued(ctx)
		if res, ok := d.ready.delete(qid); ok {
			return res, true, nil
		}
		if d.active.len() == 0 {
			return nil, false, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false, nil
		}
		if _, err := d.Poll(ctx, remaining, true); err != nil {
			return nil, false, err
		}
	}
}

// pending reports whether qid is in flight or queued.
func (d *Dispatcher) pending(qid QueryID) bool {
	for _, id := range d.inFlight {
		if id == qid {
			return true
		}
	}
	for _, q := range d.queue {
		if q.id == qid {
			return true
		}
	}
	return false
}

package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/hadb-go/hadb"
)

var (
	// ErrHandleClosed is returned by calls on a closed handle.
	ErrHandleClosed = errors.New("handle is closed")
	// ErrNothingPending is returned by Reap without an asynchronous query.
	ErrNothingPending = errors.New("no asynchronous query pending")
	// ErrQueryPending is returned by calls made while an asynchronous
	// query runs on the handle.
	ErrQueryPending = errors.New("asynchronous query pending")
)

// ResultSet is a buffered result.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Maps returns the rows keyed by column name.
func (rs *ResultSet) Maps() []map[string]any {
	maps := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		m := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			m[col] = row[i]
		}
		maps = append(maps, m)
	}
	return maps
}

// call is an asynchronous query in flight.
type call struct {
	done   chan struct{}
	data   any
	err    error
	status hadb.Status
}

type handle struct {
	t       *Transport
	conn    *sql.Conn
	db      *sql.DB // set when the handle owns its pool
	session uint64

	mu     sync.Mutex
	call   *call
	status hadb.Status
	closed bool
}

func (h *handle) init(ctx context.Context, opts hadb.DialOpts) error {
	if err := h.conn.QueryRowContext(ctx, "SELECT CONNECTION_ID()").Scan(&h.session); err != nil {
		return err
	}
	var stmts []string
	if opts.Charset != "" {
		stmts = append(stmts, "SET NAMES "+opts.Charset)
	}
	stmts = append(stmts, initStatements(opts.Options[hadb.OptInitCommand])...)
	for _, stmt := range stmts {
		if _, err := h.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (h *handle) Session() uint64 {
	return h.session
}

func (h *handle) Query(ctx context.Context, text string, mode hadb.QueryMode) (any, error) {
	h.mu.Lock()
	if err := h.usable(); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	if !mode.Async() {
		h.mu.Unlock()
		data, st, err := h.run(ctx, text, mode)
		h.setStatus(st)
		return data, err
	}

	c := &call{done: make(chan struct{})}
	h.call = c
	h.mu.Unlock()

	go func() {
		defer close(c.done)
		// The caller's context only covers the submission.
		c.data, c.status, c.err = h.run(context.WithoutCancel(ctx), text, hadb.ModeStore)
	}()
	return nil, nil
}

// usable must be called with mu held.
func (h *handle) usable() error {
	if h.closed {
		return ErrHandleClosed
	}
	if h.call != nil {
		return ErrQueryPending
	}
	return nil
}

func (h *handle) run(ctx context.Context, text string, mode hadb.QueryMode) (any, hadb.Status, error) {
	data, st, err := h.runOnce(ctx, text, mode)
	if connLost(err) && !errors.Is(err, hadb.ErrConnLost) {
		err = fmt.Errorf("%w: %w", hadb.ErrConnLost, err)
	}
	return data, st, err
}

func (h *handle) runOnce(ctx context.Context, text string, mode hadb.QueryMode) (any, hadb.Status, error) {
	stmt, kind := Classify(text)
	if kind == Exec {
		res, err := h.conn.ExecContext(ctx, stmt)
		if err != nil {
			return nil, errorStatus(err), err
		}
		st := hadb.Status{Info: stmt}
		st.AffectedRows, _ = res.RowsAffected()
		st.InsertID, _ = res.LastInsertId()
		return true, st, nil
	}

	rows, err := h.conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, errorStatus(err), err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errorStatus(err), err
	}
	st := hadb.Status{FieldCount: len(cols), Info: stmt}
	if !mode.Buffered() {
		st.AffectedRows = -1
		return rows, st, nil
	}

	rs, err := readAll(rows, cols)
	if err != nil {
		return nil, errorStatus(err), err
	}
	st.AffectedRows = int64(len(rs.Rows))
	return rs, st, nil
}

func readAll(rows *sql.Rows, cols []string) (*ResultSet, error) {
	defer rows.Close()

	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		row := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}

// pending returns the asynchronous query in flight, if any.
func (h *handle) pending() *call {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	return h.call
}

// Reap blocks until the pending asynchronous query completes.
func (h *handle) Reap() (any, error) {
	h.mu.Lock()
	c := h.call
	h.mu.Unlock()
	if c == nil {
		return nil, ErrNothingPending
	}

	<-c.done

	h.mu.Lock()
	h.call = nil
	h.status = c.status
	h.mu.Unlock()
	return c.data, c.err
}

var escaper = strings.NewReplacer(
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\x1a", `\Z`,
)

// Escape escapes text for a quoted literal on a server that does not
// run with NO_BACKSLASH_ESCAPES.
func (h *handle) Escape(text string) string {
	return escaper.Replace(text)
}

func (h *handle) Begin(ctx context.Context) error {
	return h.exec(ctx, "START TRANSACTION")
}

func (h *handle) Commit(ctx context.Context) error {
	return h.exec(ctx, "COMMIT")
}

func (h *handle) Rollback(ctx context.Context) error {
	return h.exec(ctx, "ROLLBACK")
}

func (h *handle) exec(ctx context.Context, stmt string) error {
	h.mu.Lock()
	err := h.usable()
	h.mu.Unlock()
	if err != nil {
		return err
	}
	_, st, err := h.run(ctx, "{{exec}}"+stmt, hadb.ModeStore)
	h.setStatus(st)
	return err
}

func (h *handle) setStatus(st hadb.Status) {
	h.mu.Lock()
	h.status = st
	h.mu.Unlock()
}

func (h *handle) Status() hadb.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Close releases the session. With an asynchronous query in flight the
// release happens once the query completes.
func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	h.closed = true
	c := h.call
	h.mu.Unlock()

	if c != nil {
		go func() {
			<-c.done
			if err := h.release(); err != nil {
				h.t.logger.Log(hadb.LevelWarning, "release session {session}: {error}", hadb.Fields{"session": h.session, "error": err})
			}
		}()
		return nil
	}
	return h.release()
}

func (h *handle) release() error {
	var errs *multierror.Error
	if err := h.conn.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

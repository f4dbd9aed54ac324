package test_helpers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hadb-go/hadb"
)

var (
	ErrHandleClosed   = errors.New("mock: handle is closed")
	ErrNothingPending = errors.New("mock: no pending query")
	ErrAlreadyPending = errors.New("mock: a query is already in flight")
	// ErrSessionKilled is returned by every call on a killed handle.
	ErrSessionKilled  = fmt.Errorf("mock: session killed: %w", hadb.ErrConnLost)
)

// MockTransport is an in-memory implementation of hadb.Dialer and
// hadb.Poller used for testing purposes. Asynchronous statements stay
// in flight until Complete, CompleteAll or Fail is called, or
// immediately complete when AutoComplete is set.
type MockTransport struct {
	// Respond computes the result of a statement. The statement text
	// itself is the result when Respond is nil.
	Respond func(text string) (any, error)
	// AutoComplete makes every asynchronous statement ready right away.
	AutoComplete bool

	mu          sync.Mutex
	dialErrs    map[string]error
	nextSession uint64
	handles     []*MockHandle
	dials       int
	wake        chan struct{}
}

var (
	_ hadb.Dialer = (*MockTransport)(nil)
	_ hadb.Poller = (*MockTransport)(nil)
)

func NewMockTransport() *MockTransport {
	return &MockTransport{
		dialErrs: make(map[string]error),
		wake:     make(chan struct{}),
	}
}

// FailDial makes every dial to endpoint ("host:port") fail with err.
// A nil err restores normal dialing.
func (t *MockTransport) FailDial(endpoint string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		delete(t.dialErrs, endpoint)
		return
	}
	t.dialErrs[endpoint] = err
}

// Dials returns the number of dial attempts, failed ones included.
func (t *MockTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.dials
}

// Handles returns every handle opened so far.
func (t *MockTransport) Handles() []*MockHandle {
	t.mu.Lock()
	defer t.mu.Unlock()

	ret := make([]*MockHandle, len(t.handles))
	copy(ret, t.handles)
	return ret
}

func (t *MockTransport) Dial(ctx context.Context, opts hadb.DialOpts) (hadb.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dials++
	endpoint := dialEndpoint(opts)
	if err := t.dialErrs[endpoint]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.nextSession++
	h := &MockHandle{
		t:        t,
		session:  t.nextSession,
		endpoint: endpoint,
		opts:     opts,
	}
	t.handles = append(t.handles, h)
	return h, nil
}

func dialEndpoint(opts hadb.DialOpts) string {
	if opts.Hostname == "" && opts.Socket != "" {
		return opts.Socket
	}
	return net.JoinHostPort(opts.Hostname, strconv.Itoa(opts.Port))
}

// Complete makes the in-flight statements equal to text ready. It
// returns the number of handles affected.
func (t *MockTransport) Complete(text string) int {
	return t.settle(func(h *MockHandle) bool { return h.pending == text }, nil)
}

// CompleteAll makes every in-flight statement ready.
func (t *MockTransport) CompleteAll() int {
	return t.settle(func(*MockHandle) bool { return true }, nil)
}

// Fail makes the in-flight statements equal to text fail with err. The
// handles are then reported in the errored bucket.
func (t *MockTransport) Fail(text string, err error) int {
	return t.settle(func(h *MockHandle) bool { return h.pending == text }, err)
}

func (t *MockTransport) settle(match func(h *MockHandle) bool, err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, h := range t.handles {
		if !h.hasPending || h.ready || h.failErr != nil || !match(h) {
			continue
		}
		if err != nil {
			h.failErr = err
		} else {
			h.ready = true
		}
		n++
	}
	if n > 0 {
		close(t.wake)
		t.wake = make(chan struct{})
	}
	return n
}

// Poll blocks until one of conns has settled, timeout expires or ctx
// is done.
func (t *MockTransport) Poll(ctx context.Context, conns []*hadb.Connection, timeout time.Duration) (hadb.PollResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		t.mu.Lock()
		res := t.classify(conns)
		wake := t.wake
		t.mu.Unlock()

		if len(res.Ready)+len(res.Errored)+len(res.Rejected) > 0 {
			return res, nil
		}
		select {
		case <-wake:
		case <-timer.C:
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

func (t *MockTransport) classify(conns []*hadb.Connection) hadb.PollResult {
	var res hadb.PollResult
	for _, c := range conns {
		h, ok := c.Handle().(*MockHandle)
		switch {
		case !ok || h.t != t || h.closed || !h.hasPending:
			res.Rejected = append(res.Rejected, c)
		case h.failErr != nil:
			res.Errored = append(res.Errored, c)
		case h.ready || t.AutoComplete:
			res.Ready = append(res.Ready, c)
		}
	}
	return res
}

func (t *MockTransport) respond(text string) (any, error) {
	if t.Respond == nil {
		return text, nil
	}
	return t.Respond(text)
}

// MockHandle is a handle opened by a MockTransport.
type MockHandle struct {
	t        *MockTransport
	session  uint64
	endpoint string
	opts     hadb.DialOpts

	queries    []string
	pending    string
	hasPending bool
	ready      bool
	failErr    error
	status     hadb.Status
	inTx       bool
	closed     bool
	killed     bool
}

func (h *MockHandle) Session() uint64 {
	return h.session
}

// Endpoint returns the dialed "host:port".
func (h *MockHandle) Endpoint() string {
	return h.endpoint
}

// Opts returns the options the handle was dialed with.
func (h *MockHandle) Opts() hadb.DialOpts {
	return h.opts
}

// Queries returns every statement received, transaction control included.
func (h *MockHandle) Queries() []string {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	ret := make([]string, len(h.queries))
	copy(ret, h.queries)
	return ret
}

// Pending returns the in-flight asynchronous statement, if any.
func (h *MockHandle) Pending() (string, bool) {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	return h.pending, h.hasPending
}

func (h *MockHandle) InTransaction() bool {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	return h.inTx
}

func (h *MockHandle) Closed() bool {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	return h.closed
}

// Kill ends the session as the server would: later calls fail with
// ErrSessionKilled and an in-flight statement is reported errored.
func (h *MockHandle) Kill() {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	h.killed = true
	if h.hasPending {
		h.ready, h.failErr = false, ErrSessionKilled
		close(h.t.wake)
		h.t.wake = make(chan struct{})
	}
}

func (h *MockHandle) Query(ctx context.Context, text string, mode hadb.QueryMode) (any, error) {
	h.t.mu.Lock()
	if h.closed {
		h.t.mu.Unlock()
		return nil, ErrHandleClosed
	}
	if h.killed {
		h.t.mu.Unlock()
		return nil, ErrSessionKilled
	}
	if h.hasPending {
		h.t.mu.Unlock()
		return nil, ErrAlreadyPending
	}
	h.queries = append(h.queries, text)
	if mode.Async() {
		h.pending, h.hasPending = text, true
		h.ready, h.failErr = false, nil
		h.t.mu.Unlock()
		return nil, nil
	}
	h.t.mu.Unlock()

	data, err := h.t.respond(text)
	h.setStatus(text, err)
	return data, err
}

func (h *MockHandle) Reap() (any, error) {
	h.t.mu.Lock()
	if !h.hasPending {
		h.t.mu.Unlock()
		return nil, ErrNothingPending
	}
	text, failErr := h.pending, h.failErr
	h.pending, h.hasPending = "", false
	h.ready, h.failErr = false, nil
	h.t.mu.Unlock()

	if failErr != nil {
		h.setStatus(text, failErr)
		return nil, failErr
	}
	data, err := h.t.respond(text)
	h.setStatus(text, err)
	return data, err
}

func (h *MockHandle) setStatus(text string, err error) {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	h.status = hadb.Status{AffectedRows: 1, Info: text}
	if err != nil {
		h.status = hadb.Status{AffectedRows: -1, ErrNo: 1, Error: err.Error(), Info: text}
	}
}

var escaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func (h *MockHandle) Escape(text string) string {
	return escaper.Replace(text)
}

func (h *MockHandle) Begin(ctx context.Context) error {
	return h.control("START TRANSACTION", true)
}

func (h *MockHandle) Commit(ctx context.Context) error {
	return h.control("COMMIT", false)
}

func (h *MockHandle) Rollback(ctx context.Context) error {
	return h.control("ROLLBACK", false)
}

func (h *MockHandle) control(stmt string, inTx bool) error {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if h.killed {
		return ErrSessionKilled
	}
	h.queries = append(h.queries, stmt)
	h.inTx = inTx
	return nil
}

func (h *MockHandle) Status() hadb.Status {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	return h.status
}

func (h *MockHandle) Close() error {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	return nil
}

func (h *MockHandle) String() string {
	return fmt.Sprintf("mock %s#%d", h.endpoint, h.session)
}

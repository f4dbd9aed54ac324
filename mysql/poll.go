package mysql

import (
	"context"
	"reflect"
	"time"

	"github.com/hadb-go/hadb"
)

// Poll waits at most timeout for an asynchronous query of conns to
// complete. Connections that are not open handles of t with a query in
// flight are rejected and returned without waiting.
func (t *Transport) Poll(ctx context.Context, conns []*hadb.Connection, timeout time.Duration) (hadb.PollResult, error) {
	var res hadb.PollResult

	calls := make([]*call, len(conns))
	for i, conn := range conns {
		h, ok := conn.Handle().(*handle)
		if !ok || h.t != t {
			res.Rejected = append(res.Rejected, conn)
			continue
		}
		if calls[i] = h.pending(); calls[i] == nil {
			res.Rejected = append(res.Rejected, conn)
		}
	}
	if len(res.Rejected) > 0 || len(conns) == 0 {
		return res, nil
	}
	if collect(conns, calls, &res) {
		return res, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	cases := make([]reflect.SelectCase, 0, len(calls)+2)
	for _, c := range calls {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(c.done)})
	}
	cases = append(cases,
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)},
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
	)

	if chosen, _, _ := reflect.Select(cases); chosen == len(cases)-1 {
		return res, ctx.Err()
	}
	collect(conns, calls, &res)
	return res, nil
}

// collect sorts completed calls into res and reports whether any was.
func collect(conns []*hadb.Connection, calls []*call, res *hadb.PollResult) bool {
	found := false
	for i, c := range calls {
		select {
		case <-c.done:
		default:
			continue
		}
		found = true
		if connLost(c.err) {
			res.Errored = append(res.Errored, conns[i])
		} else {
			res.Ready = append(res.Ready, conns[i])
		}
	}
	return found
}

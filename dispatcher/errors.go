package dispatcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hadb-go/hadb"
)

var (
	ErrInvalidMaxConn        = fmt.Errorf("%w: max connections must be at least 1", hadb.ErrConfig)
	ErrNoConnectionAvailable = errors.New("no connection available")
	ErrQueryFailed           = errors.New("query failed")
	ErrConnectionRejected    = errors.New("connection rejected by poll")
	ErrConnectionErrored     = errors.New("connection reported an error")
	ErrInTransaction         = errors.New("a transaction is already open")
	ErrNoTransaction         = errors.New("no open transaction")
	ErrUnsupportedValue      = errors.New("value cannot be escaped")
	ErrClosed                = errors.New("dispatcher is closed")
)

// QueryError is the failure of a single query. It matches
// ErrQueryFailed and the underlying transport error.
type QueryError struct {
	QueryID QueryID
	ConnID  hadb.ConnID
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %d on %s: %v", e.QueryID, e.ConnID, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQueryFailed, e.Err}
}

// RejectedError is returned by Poll when the transport rejected
// connections the dispatcher believed active. The accounting of the
// dispatcher can no longer be trusted.
type RejectedError struct {
	ConnIDs []hadb.ConnID
}

func (e *RejectedError) Error() string {
	ids := make([]string, len(e.ConnIDs))
	for i, id := range e.ConnIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%s: %s", ErrConnectionRejected, strings.Join(ids, ", "))
}

func (e *RejectedError) Unwrap() error {
	return ErrConnectionRejected
}

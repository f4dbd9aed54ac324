package dispatcher

import (
	"math"
	"time"
)

const (
	// DefaultMaxConn is the connection ceiling when none is configured.
	DefaultMaxConn = 8
	// DefaultPollWait bounds a poll called with a zero wait.
	DefaultPollWait = 10 * time.Second
)

// QueryID identifies a query submitted to a Dispatcher. Zero is never
// allocated.
type QueryID uint64

const maxQueryID = QueryID(math.MaxUint64)

package pool

// Pooler is the interface of a server pool as seen by a dispatcher.
type Pooler interface {
	// GetServer returns a server according to the selection policy.
	GetServer() (*Server, error)
	MarkServerDown(id ServerID) (bool, error)
	MarkServerUp(id ServerID) (bool, error)
	// Len returns the number of servers in the pool.
	Len() int
}

var _ Pooler = (*ServerPool)(nil)

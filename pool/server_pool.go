// Package pool holds the servers a dispatcher may connect to.
//
// Main features:
//
// - Return a server according to a fallback, round-robin or random policy.
//
// - Track server liveness through explicit mark-up and mark-down calls.
package pool

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/hadb-go/hadb"
)

var (
	ErrEmptyPool        = errors.New("server pool is empty")
	ErrAllServersDown   = errors.New("all servers are down")
	ErrUnknownServer    = errors.New("unknown server")
	ErrDuplicateServer  = fmt.Errorf("%w: duplicate server id", hadb.ErrConfig)
	ErrUnknownSelection = fmt.Errorf("%w: unknown selection policy", hadb.ErrConfig)
)

// Opts configures a ServerPool.
type Opts struct {
	// Selection is the policy of GetServer. The zero value is Fallback.
	Selection Selection
	// Rand is the source of Random selection and ShufflePool.
	// A randomly seeded source is used when nil.
	Rand *rand.Rand
	// FirstID is the first id handed out by NewServer. Zero means 1.
	FirstID ServerID
	Logger hadb.Logger
}

// ServerPool is an ordered set of servers keyed by id.
type ServerPool struct {
	mu       sync.RWMutex
	servers  []*Server
	byID     map[ServerID]*Server
	strategy strategy
	sel      Selection
	rnd      *lockedRand
	ids      *IDAllocator
	logger   hadb.Logger
}

// New creates an empty pool.
func New(opts Opts) *ServerPool {
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.FirstID == 0 {
		opts.FirstID = 1
	}
	if opts.Logger == nil {
		opts.Logger = hadb.NopLogger{}
	}
	p := &ServerPool{
		byID:   make(map[ServerID]*Server),
		sel:    opts.Selection,
		rnd:    &lockedRand{rnd: rnd},
		ids:    NewIDAllocator(opts.FirstID),
		logger: opts.Logger,
	}
	p.strategy = newStrategy(opts.Selection, p.rnd)
	return p
}

// NewServer creates a server with an id from the pool allocator. The
// server is not added to the pool.
func (p *ServerPool) NewServer(desc *hadb.ServerDescription, dialer hadb.Dialer) *Server {
	return NewServer(p.ids.Next(), desc, dialer)
}

// AddServer appends a server. It fails with ErrDuplicateServer if the id
// is already present.
func (p *ServerPool) AddServer(s *Server) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byID[s.ID()]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateServer, s.ID())
	}
	p.servers = append(p.servers, s)
	p.byID[s.ID()] = s
	p.logger.Log(hadb.LevelDebug, "server {server} added", hadb.Fields{"server": s})
	return nil
}

// GetServer returns a server according to the selection policy.
func (p *ServerPool) GetServer() (*Server, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.strategy.next(p.servers)
}

// Server returns the server with the given id.
func (p *ServerPool) Server(id ServerID) (*Server, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.byID[id]
	return s, ok
}

// Servers returns the servers in pool order.
func (p *ServerPool) Servers() []*Server {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ret := make([]*Server, len(p.servers))
	copy(ret, p.servers)
	return ret
}

func (p *ServerPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.servers)
}

func (p *ServerPool) Selection() Selection {
	return p.sel
}

// MarkServerDown marks a server dead. It reports whether the state
// changed.
func (p *ServerPool) MarkServerDown(id ServerID) (bool, error) {
	s, ok := p.Server(id)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownServer, id)
	}
	changed := s.MarkDown()
	if changed {
		p.logger.Log(hadb.LevelWarning, "server {server} marked down", hadb.Fields{"server": s})
	}
	return changed, nil
}

// MarkServerUp marks a server alive. It reports whether the state
// changed.
func (p *ServerPool) MarkServerUp(id ServerID) (bool, error) {
	s, ok := p.Server(id)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownServer, id)
	}
	changed := s.MarkUp()
	if changed {
		p.logger.Log(hadb.LevelInfo, "server {server} marked up", hadb.Fields{"server": s})
	}
	return changed, nil
}

// ShufflePool randomizes the pool order.
func (p *ServerPool) ShufflePool() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rnd.Shuffle(len(p.servers), func(i, j int) {
		p.servers[i], p.servers[j] = p.servers[j], p.servers[i]
	})
}

package pool

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// strategy picks a server from the pool order. It is called with the
// pool lock held.
type strategy interface {
	next(servers []*Server) (*Server, error)
}

func newStrategy(sel Selection, rnd *lockedRand) strategy {
	switch sel {
	case RoundRobin:
		return &roundRobinStrategy{}
	case Random:
		return &randomStrategy{rnd: rnd}
	default:
		return fallbackStrategy{}
	}
}

// roundRobinStrategy rotates over every server, alive or not.
type roundRobinStrategy struct {
	current atomic.Uint64
}

func (r *roundRobinStrategy) next(servers []*Server) (*Server, error) {
	if len(servers) == 0 {
		return nil, ErrEmptyPool
	}
	return servers[r.nextIndex(len(servers))], nil
}

func (r *roundRobinStrategy) nextIndex(size int) uint64 {
	next := r.current.Add(1)
	return (next - 1) % uint64(size)
}

type randomStrategy struct {
	rnd *lockedRand
}

func (r *randomStrategy) next(servers []*Server) (*Server, error) {
	if len(servers) == 0 {
		return nil, ErrEmptyPool
	}
	alive := make([]*Server, 0, len(servers))
	for _, s := range servers {
		if s.IsAlive() {
			alive = append(alive, s)
		}
	}
	if len(alive) == 0 {
		return nil, ErrAllServersDown
	}
	return alive[r.rnd.IntN(len(alive))], nil
}

type fallbackStrategy struct{}

func (fallbackStrategy) next(servers []*Server) (*Server, error) {
	if len(servers) == 0 {
		return nil, ErrEmptyPool
	}
	for _, s := range servers {
		if s.IsAlive() {
			return s, nil
		}
	}
	return nil, ErrAllServersDown
}

// lockedRand serializes access to a *rand.Rand.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.IntN(n)
}

func (r *lockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(n, swap)
}

package pool

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hadb-go/hadb"
)

// Server is a liveness-tracked connection factory for one endpoint.
type Server struct {
	id     ServerID
	desc   *hadb.ServerDescription
	dialer hadb.Dialer
	down   atomic.Bool
}

// NewServer creates an alive server. desc is copied.
func NewServer(id ServerID, desc *hadb.ServerDescription, dialer hadb.Dialer) *Server {
	return &Server{
		id:     id,
		desc:   desc.Clone(),
		dialer: dialer,
	}
}

func (s *Server) ID() ServerID {
	return s.id
}

func (s *Server) Description() *hadb.ServerDescription {
	return s.desc
}

func (s *Server) IsAlive() bool {
	return !s.down.Load()
}

// MarkUp marks the server alive and reports whether it was down.
func (s *Server) MarkUp() bool {
	return s.down.CompareAndSwap(true, false)
}

// MarkDown marks the server dead and reports whether it was alive.
func (s *Server) MarkDown() bool {
	return s.down.CompareAndSwap(false, true)
}

// NewConnection opens a connection to the server. A failure is
// returned as is and does not change liveness.
func (s *Server) NewConnection(ctx context.Context) (*hadb.Connection, error) {
	return hadb.Connect(ctx, s.dialer, s.desc)
}

func (s *Server) String() string {
	return fmt.Sprintf("[%d] %s", s.id, s.desc)
}

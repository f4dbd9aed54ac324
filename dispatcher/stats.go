package dispatcher

// Stats is a snapshot of a dispatcher.
type Stats struct {
	ID      string
	MaxConn int
	Idle    int
	Active  int
	Pinned  int
	Queued  int
	Ready   int
	// Opened counts connections opened since creation.
	Opened    uint64
	Queries   uint64
	Completed uint64
	Failed    uint64
}

// Stats returns the latest snapshot. It is safe to call from any
// goroutine.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	return d.stats
}

func (d *Dispatcher) updateStats() {
	s := Stats{
		ID:        d.id.String(),
		MaxConn:   d.maxConn,
		Idle:      d.idle.len(),
		Active:    d.active.len(),
		Queued:    len(d.queue),
		Ready:     d.ready.len(),
		Opened:    d.counters.opened,
		Queries:   d.counters.queries,
		Completed: d.counters.completed,
		Failed:    d.counters.failed,
	}
	if d.tx != nil {
		s.Pinned = 1
	}

	d.statsMu.Lock()
	d.stats = s
	d.statsMu.Unlock()
}

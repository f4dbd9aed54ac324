package dispatcher

import (
	"github.com/hadb-go/hadb"
)

func (d *Dispatcher) SetCurrentQueryID(id QueryID) {
	d.currentID = id
}

func (d *Dispatcher) IdleIDs() []hadb.ConnID {
	ids := make([]hadb.ConnID, 0, d.idle.len())
	for _, conn := range d.idle.values() {
		ids = append(ids, conn.ID())
	}
	return ids
}

func (d *Dispatcher) ActiveCount() int {
	return d.active.len()
}

func (d *Dispatcher) QueuedCount() int {
	return len(d.queue)
}

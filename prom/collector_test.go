package prom_test

import (
	"context"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadb-go/hadb/dispatcher"
	"github.com/hadb-go/hadb/pool"
	hadbprom "github.com/hadb-go/hadb/prom"
	"github.com/hadb-go/hadb/test_helpers"
)

type staticStats dispatcher.Stats

func (s staticStats) Stats() dispatcher.Stats { return dispatcher.Stats(s) }

func TestCollector(t *testing.T) {
	c := hadbprom.NewCollector(staticStats{
		ID:        "d1",
		MaxConn:   8,
		Idle:      2,
		Active:    1,
		Queued:    3,
		Opened:    4,
		Queries:   10,
		Completed: 6,
		Failed:    1,
	}, "")

	expected := `
# HELP hadb_dispatcher_connections_idle Idle connections.
# TYPE hadb_dispatcher_connections_idle gauge
hadb_dispatcher_connections_idle{dispatcher="d1"} 2
# HELP hadb_dispatcher_queries_queued Queries waiting for a connection.
# TYPE hadb_dispatcher_queries_queued gauge
hadb_dispatcher_queries_queued{dispatcher="d1"} 3
# HELP hadb_dispatcher_queries_total Queries submitted.
# TYPE hadb_dispatcher_queries_total counter
hadb_dispatcher_queries_total{dispatcher="d1"} 10
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"hadb_dispatcher_connections_idle",
		"hadb_dispatcher_queries_queued",
		"hadb_dispatcher_queries_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 10, testutil.CollectAndCount(c))
}

func TestCollectorOverDispatcher(t *testing.T) {
	ctx := context.Background()
	tr := test_helpers.NewMockTransport()
	p := pool.New(pool.Opts{})
	require.NoError(t, p.AddServer(p.NewServer(test_helpers.NewDescription("db1"), tr)))
	d := dispatcher.New(p, tr, dispatcher.Opts{MaxConn: 1})
	t.Cleanup(func() { _ = d.Close() })

	_, _, err := d.AsyncQuery(ctx, "SELECT 1")
	require.NoError(t, err)
	_, queued, err := d.AsyncQuery(ctx, "SELECT 2")
	require.NoError(t, err)
	require.True(t, queued)

	reg := prom.NewPedanticRegistry()
	require.NoError(t, reg.Register(hadbprom.NewCollector(d, "app")))

	expected := `
# HELP app_dispatcher_connections_active Connections with a query in flight.
# TYPE app_dispatcher_connections_active gauge
app_dispatcher_connections_active{dispatcher="` + d.ID().String() + `"} 1
# HELP app_dispatcher_queries_queued Queries waiting for a connection.
# TYPE app_dispatcher_queries_queued gauge
app_dispatcher_queries_queued{dispatcher="` + d.ID().String() + `"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"app_dispatcher_connections_active",
		"app_dispatcher_queries_queued",
	)
	assert.NoError(t, err)
}

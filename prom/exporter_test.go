package prom_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hadbprom "github.com/hadb-go/hadb/prom"
)

func TestExporter(t *testing.T) {
	e, err := hadbprom.NewExporter(hadbprom.NewCollector(staticStats{ID: "d1", MaxConn: 8}, ""))
	require.NoError(t, err)

	expo, err := e.Scrape()
	require.NoError(t, err)
	assert.Contains(t, expo, `hadb_dispatcher_max_connections{dispatcher="d1"} 8`)

	srv := httptest.NewServer(e)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, expo, string(body))
}

func TestExporterRejectsDuplicates(t *testing.T) {
	c := hadbprom.NewCollector(staticStats{ID: "d1"}, "")
	_, err := hadbprom.NewExporter(c, c)
	assert.Error(t, err)
}

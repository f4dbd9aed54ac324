package prom

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Exporter owns a registry and renders it in the text exposition format.
type Exporter struct {
	reg *prom.Registry
}

// NewExporter registers collectors in a new registry.
func NewExporter(collectors ...prom.Collector) (*Exporter, error) {
	reg := prom.NewRegistry()
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Exporter{reg: reg}, nil
}

// Scrape gathers every collector and returns the text exposition.
func (e *Exporter) Scrape() (string, error) {
	mfs, err := e.reg.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// ServeHTTP responds to GET /metrics.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	expo, err := e.Scrape()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, expo)
}

package telemetry

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultCollectorPort is the standard OTLP/HTTP port.
const DefaultCollectorPort = 4318

// Collector is the OTLP/HTTP ingest server. It accepts JSON exports on the
// standard /v1/metrics and /v1/logs routes and writes them to the store.
type Collector struct {
	store *Store
	srv   *http.Server
}

// NewCollector wires a collector to a store. Addr is host:port; an empty
// host binds loopback only.
func NewCollector(store *Store, addr string) *Collector {
	c := &Collector{store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/metrics", c.handleMetrics)
	mux.HandleFunc("POST /v1/logs", c.handleLogs)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	c.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return c
}

// Run serves until the context is canceled, then shuts down gracefully.
func (c *Collector) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.srv.Addr)
	if err != nil {
		return fmt.Errorf("telemetry: listen %s: %w", c.srv.Addr, err)
	}
	log.Printf("telemetry: collector listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (c *Collector) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	var req ExportMetricsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Printf("telemetry: malformed metrics export: %v", err)
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	metrics := ExtractMetrics(req)
	if err := c.store.InsertMetrics(r.Context(), metrics); err != nil {
		log.Printf("telemetry: store metrics: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *Collector) handleLogs(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	var req ExportLogsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Printf("telemetry: malformed logs export: %v", err)
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	events := ExtractEvents(req)
	if err := c.store.InsertEvents(r.Context(), events); err != nil {
		log.Printf("telemetry: store events: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// readBody drains the request body, transparently handling gzip encoding.
func readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body
	if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(io.LimitReader(reader, 32<<20))
}

// Package diagnostics exposes an optional HTTP status/metrics surface
// over the running gateway's proxy statistics: a JSON /stats endpoint, a
// Prometheus /metrics endpoint, and a WebSocket /ws feed for live
// dashboards. It never touches the PTCP link directly — it only reads
// the proxy loop's atomic Stats snapshot, so it cannot interfere with
// the single-threaded proxy loop's ownership of the link.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p2pcam/camgate/internal/logging"
	"github.com/p2pcam/camgate/internal/proxy"
)

// Server hosts the diagnostics HTTP surface.
type Server struct {
	stats  *proxy.Stats
	serial string
	log    *logging.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	metrics metricsSet
}

type metricsSet struct {
	tunnelsOpened   prometheus.Gauge
	tunnelsClosed   prometheus.Gauge
	bytesToDevice   prometheus.Gauge
	bytesFromDevice prometheus.Gauge
	keepalives      prometheus.Gauge
}

// New builds a diagnostics server bound to addr, reading stats and
// tagging its metrics with serial (the camera this gateway instance
// serves).
func New(addr, serial string, stats *proxy.Stats, log *logging.Logger) *Server {
	s := &Server{
		stats:    stats,
		serial:   serial,
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}

	reg := prometheus.NewRegistry()
	s.metrics = metricsSet{
		tunnelsOpened:   s.gauge(reg, "camgate_tunnels_opened_total", "Tunnels opened since start."),
		tunnelsClosed:   s.gauge(reg, "camgate_tunnels_closed_total", "Tunnels closed since start."),
		bytesToDevice:   s.gauge(reg, "camgate_bytes_to_device_total", "Bytes sent to the device."),
		bytesFromDevice: s.gauge(reg, "camgate_bytes_from_device_total", "Bytes received from the device."),
		keepalives:      s.gauge(reg, "camgate_keepalives_total", "Keepalive frames observed."),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) gauge(reg *prometheus.Registry, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: prometheus.Labels{"serial": s.serial}})
	reg.MustRegister(g)
	return g
}

// Start runs the HTTP server until it is stopped. A background ticker
// refreshes the Prometheus gauges from stats every two seconds, so a
// scrape sees values at most that old.
func (s *Server) Start() error {
	stop := make(chan struct{})
	go s.refreshLoop(stop)
	defer close(stop)

	if s.log != nil {
		s.log.Info("diagnostics server starting", logging.Fields{"addr": s.httpServer.Addr})
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error { return s.httpServer.Close() }

func (s *Server) refreshLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.metrics.tunnelsOpened.Set(float64(s.stats.TunnelsOpened.Load()))
			s.metrics.tunnelsClosed.Set(float64(s.stats.TunnelsClosed.Load()))
			s.metrics.bytesToDevice.Set(float64(s.stats.BytesToDevice.Load()))
			s.metrics.bytesFromDevice.Set(float64(s.stats.BytesFromDevice.Load()))
			s.metrics.keepalives.Set(float64(s.stats.Keepalives.Load()))
		}
	}
}

type statsSnapshot struct {
	Serial          string `json:"serial"`
	TunnelsOpened   uint64 `json:"tunnels_opened"`
	TunnelsClosed   uint64 `json:"tunnels_closed"`
	BytesToDevice   uint64 `json:"bytes_to_device"`
	BytesFromDevice uint64 `json:"bytes_from_device"`
	Keepalives      uint64 `json:"keepalives"`
}

func (s *Server) snapshot() statsSnapshot {
	return statsSnapshot{
		Serial:          s.serial,
		TunnelsOpened:   s.stats.TunnelsOpened.Load(),
		TunnelsClosed:   s.stats.TunnelsClosed.Load(),
		BytesToDevice:   s.stats.BytesToDevice.Load(),
		BytesFromDevice: s.stats.BytesFromDevice.Load(),
		Keepalives:      s.stats.Keepalives.Load(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}

// handleWebSocket pushes a stats snapshot once a second until the client
// disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warn("websocket upgrade failed", logging.Fields{"error": err.Error()})
		}
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
	}
}

// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wfunc/puzzleduel/room"
)

type Metrics struct {
	OnlinePlayers     prometheus.Gauge
	WaitingPlayers    prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MatchesStarted    prometheus.Counter
	RoomsClosed       *prometheus.CounterVec
	RoomDuration      prometheus.Histogram
	MessagesReceived  *prometheus.CounterVec
	MessageLatency    prometheus.Histogram
	DeliveriesDropped prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected clients",
		}),
		WaitingPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_players",
			Help:      "Number of clients waiting for an opponent",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of open rooms",
		}),
		MatchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "Total number of rooms opened by pairing",
		}),
		RoomsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_closed_total",
			Help:      "Total number of rooms closed, by reason",
		}, []string{"reason"}),
		RoomDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "room_duration_seconds",
			Help:      "Time from pairing to room teardown",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of client actions received, by type",
		}, []string{"type"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Client action processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Messages dropped because a client outbox was full or closed",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OnlinePlayers,
		m.WaitingPlayers,
		m.ActiveRooms,
		m.MatchesStarted,
		m.RoomsClosed,
		m.RoomDuration,
		m.MessagesReceived,
		m.MessageLatency,
		m.DeliveriesDropped,
	}
}

// Monitor owns a private registry so several instances can coexist.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	m := &Monitor{
		metrics:   NewMetrics(namespace),
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	m.registry.MustRegister(m.metrics.collectors()...)
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the server started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	}))

	return m
}

// RegisterRuntimeCollectors adds Go runtime and process metrics.
func (m *Monitor) RegisterRuntimeCollectors() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr in the background.
func (m *Monitor) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go srv.ListenAndServe()
	return srv
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) IncMessagesReceived(actionType string) {
	m.metrics.MessagesReceived.WithLabelValues(actionType).Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncDeliveriesDropped() {
	m.metrics.DeliveriesDropped.Inc()
}

// Queued, Dequeued, RoomOpened and RoomClosed track the matchmaking service.

func (m *Monitor) Queued(string) {
	m.metrics.WaitingPlayers.Inc()
}

func (m *Monitor) Dequeued(string) {
	m.metrics.WaitingPlayers.Dec()
}

func (m *Monitor) RoomOpened(room.Room) {
	m.metrics.ActiveRooms.Inc()
	m.metrics.MatchesStarted.Inc()
}

func (m *Monitor) RoomClosed(r room.Room) {
	m.metrics.ActiveRooms.Dec()
	m.metrics.RoomsClosed.WithLabelValues(string(r.Reason)).Inc()
	m.metrics.RoomDuration.Observe(time.Since(r.CreatedAt).Seconds())
}

// Package metrics exports bridge events as Prometheus collectors and as a
// JSON snapshot.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pushbridge "github.com/slush-dev/push-bridge"
)

var states = []pushbridge.State{
	pushbridge.StateUninitialized,
	pushbridge.StateAuthorizationRequested,
	pushbridge.StateRegistrationPending,
	pushbridge.StateRegistered,
	pushbridge.StateRegistrationFailed,
}

// Sink is a pushbridge.Sink that counts events. Each Sink owns its
// registry, so several can coexist in one process.
type Sink struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	state         *prometheus.GaugeVec
	providerToken prometheus.Gauge
	lastEvent     prometheus.Gauge

	mu       sync.Mutex
	counts   map[pushbridge.EventKind]int64
	current  pushbridge.State
	lastSeen time.Time
	hasToken bool
}

var _ pushbridge.Sink = (*Sink)(nil)

// NewSink creates a Sink with its collectors registered.
func NewSink() *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pushbridge_events_total",
				Help: "Bridge events by kind",
			},
			[]string{"kind"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pushbridge_state",
				Help: "1 for the current registration state, 0 otherwise",
			},
			[]string{"state"},
		),
		providerToken: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pushbridge_provider_token_valid",
				Help: "1 while a provider token is held",
			},
		),
		lastEvent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pushbridge_last_event_timestamp_seconds",
				Help: "Unix timestamp of the last bridge event",
			},
		),
		counts: make(map[pushbridge.EventKind]int64),
	}
	s.registry.MustRegister(s.events, s.state, s.providerToken, s.lastEvent)
	s.setStateLocked(pushbridge.StateUninitialized)
	return s
}

// Registry returns the registry holding the Sink's collectors.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

// Emit updates counters and gauges from e.
func (s *Sink) Emit(e pushbridge.Event) {
	s.events.WithLabelValues(string(e.Kind)).Inc()
	if !e.Time.IsZero() {
		s.lastEvent.Set(float64(e.Time.Unix()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[e.Kind]++
	s.lastSeen = e.Time
	switch e.Kind {
	case pushbridge.EventProviderToken, pushbridge.EventProviderTokenFetched:
		s.hasToken = e.ProviderToken.Valid()
	}
	if s.hasToken {
		s.providerToken.Set(1)
	} else {
		s.providerToken.Set(0)
	}
	s.setStateLocked(e.State)
}

// setStateLocked moves the one-hot state gauge. s.mu must be held so that
// exactly one state series reads 1.
func (s *Sink) setStateLocked(current pushbridge.State) {
	s.current = current
	for _, st := range states {
		v := 0.0
		if st == current {
			v = 1
		}
		s.state.WithLabelValues(st.String()).Set(v)
	}
}

// Snapshot is the JSON view of a Sink.
type Snapshot struct {
	Events             map[pushbridge.EventKind]int64 `json:"events"`
	State              pushbridge.State               `json:"state"`
	ProviderTokenValid bool                           `json:"provider_token_valid"`
	LastEvent          string                         `json:"last_event,omitempty"`
}

// Snapshot returns the current counts.
func (s *Sink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[pushbridge.EventKind]int64, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	snap := Snapshot{
		Events:             counts,
		State:              s.current,
		ProviderTokenValid: s.hasToken,
	}
	if !s.lastSeen.IsZero() {
		snap.LastEvent = s.lastSeen.UTC().Format(time.RFC3339)
	}
	return snap
}

// Handler returns an HTTP handler that exposes the Prometheus metrics.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// JSONHandler returns an HTTP handler serving the current Snapshot.
func (s *Sink) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Snapshot())
	})
}

// Mux serves /metrics and /metrics.json.
func (s *Sink) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	mux.Handle("/metrics.json", s.JSONHandler())
	return mux
}

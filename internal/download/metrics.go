package download

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts coordinator activity. A nil *Metrics records nothing.
type Metrics struct {
	transfers     *prometheus.CounterVec
	cacheHits     prometheus.Counter
	joinedWaiters prometheus.Counter
}

// NewMetrics creates the coordinator metrics and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hymnal",
			Subsystem: "download",
			Name:      "transfers_total",
			Help:      "Completed recording transfers by result.",
		}, []string{"result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hymnal",
			Subsystem: "download",
			Name:      "cache_hits_total",
			Help:      "Requests served from the local cache without a transfer.",
		}),
		joinedWaiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hymnal",
			Subsystem: "download",
			Name:      "joined_waiters_total",
			Help:      "Requests that joined a transfer already in flight.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.transfers, m.cacheHits, m.joinedWaiters)
	}

	return m
}

func (m *Metrics) transfer(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.transfers.WithLabelValues(result).Inc()
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) joinedWaiter() {
	if m == nil {
		return
	}
	m.joinedWaiters.Inc()
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "rideshare", Name: "connections_open", Help: "Number of open client connections"})

	RidesCreatedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideshare", Name: "rides_created_total", Help: "Total ride requests persisted"})
	MatchesTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rideshare", Name: "matches_total", Help: "Total match computations that found at least one driver"})
	PushesSentTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "rideshare", Name: "pushes_sent_total", Help: "Push notifications written to a peer"}, []string{"event"})
	PushesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "rideshare", Name: "pushes_dropped_total", Help: "Push notifications dropped because the peer was offline or the write failed"}, []string{"event"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "rideshare", Name: "requests_total", Help: "Protocol requests handled"}, []string{"action", "status"})
)

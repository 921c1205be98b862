// internal/service/flashdeal/interfaces/metrics.go
package interfaces

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashdeal_reservations_total",
		Help: "Reservation attempts by outcome.",
	}, []string{"outcome"})

	releasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashdeal_releases_total",
		Help: "Reservation releases by outcome.",
	}, []string{"outcome"})

	finalizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashdeal_finalizations_total",
		Help: "Reservation finalizations by outcome.",
	}, []string{"outcome"})
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
	outcomeNoop     = "noop"
)

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded by authOperations.
const (
	outcomeSuccess            = "success"
	outcomeInvalidInput       = "invalid_input"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeDuplicate          = "duplicate"
	outcomeUnauthenticated    = "unauthenticated"
	outcomeError              = "error"
)

var authOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Auth protocol operations by outcome",
	},
	[]string{"operation", "outcome"},
)

func observe(operation, outcome string) {
	authOperations.WithLabelValues(operation, outcome).Inc()
}

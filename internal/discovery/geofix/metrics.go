package geofix

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var acquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "geofix_acquisitions_total",
	Help: "Acquisition events grouped by outcome.",
}, []string{"outcome"})

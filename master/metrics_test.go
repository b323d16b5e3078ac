package master

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testutilCounterValue(c prometheus.Counter) float64 {
	return testutil.ToFloat64(c)
}

func testutilCounterVecValue(cv *prometheus.CounterVec, label string) float64 {
	return testutil.ToFloat64(cv.WithLabelValues(label))
}

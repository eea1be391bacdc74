package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// constant 1, labelled with version and commit
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Elevation service build information.",
		},
		[]string{"version", "commit"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ready",
		Help: "1 when the service dependencies are reachable.",
	})
)

// InitBuildInfo registers build_info once and sets it for the running binary.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo, readyGauge)
	})
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// SetReady records the latest readiness probe result.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

package lookup

import (
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nickwatch_lookup_searches_total",
			Help: "Profile lookups by outcome",
		},
		[]string{"result"},
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nickwatch_lookup_duration_seconds",
			Help:    "Time from lookup command to resolution",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		},
	)
)

func observeSearch(started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = errorhandler.CategoryOf(err).String()
	}
	searchTotal.WithLabelValues(result).Inc()
	searchDuration.Observe(time.Since(started).Seconds())
}

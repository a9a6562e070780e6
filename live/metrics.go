package live

import (
	"github.com/VictoriaMetrics/metrics"
)

var (
	sentTotal          = metrics.NewCounter(`cuebridge_osc_sent_total`)
	receivedTotal      = metrics.NewCounter(`cuebridge_osc_received_total`)
	malformedTotal     = metrics.NewCounter(`cuebridge_osc_malformed_total`)
	queriesTotal       = metrics.NewCounter(`cuebridge_osc_queries_total`)
	queryTimeoutsTotal = metrics.NewCounter(`cuebridge_osc_query_timeouts_total`)
	queryDuration      = metrics.NewHistogram(`cuebridge_osc_query_duration_seconds`)
	watchesTotal       = metrics.NewCounter(`cuebridge_monitor_watches_total`)
)

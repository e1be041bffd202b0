package stats

import (
	"strings"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	Namespace = "hbck"
)

var (
	Gather = prometheus.NewRegistry()

	CatalogStoreCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "catalogStore",
			Name:      "request_total",
			Help:      "Counter of catalog store requests.",
		}, []string{"store", "type"})

	CatalogStoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "catalogStore",
			Name:      "request_seconds",
			Help:      "Bucketed histogram of catalog store request processing time.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 24),
		}, []string{"store", "type"})

	ScanHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "scan",
			Name:      "seconds",
			Help:      "Bucketed histogram of inventory scan time.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 20),
		}, []string{"source"})

	ScanErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scan",
			Name:      "errors_total",
			Help:      "Counter of units that could not be scanned after retries.",
		}, []string{"source"})

	InconsistencyCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "check",
			Name:      "inconsistencies_total",
			Help:      "Counter of classified inconsistencies.",
		}, []string{"kind"})

	RebuildCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rebuild",
			Name:      "tables_total",
			Help:      "Counter of per-table rebuild outcomes.",
		}, []string{"result"})

	RebuildRowsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rebuild",
			Name:      "rows",
			Help:      "Catalog rows staged by the last rebuild of a table.",
		}, []string{"table"})
)

func init() {
	Gather.MustRegister(CatalogStoreCounter)
	Gather.MustRegister(CatalogStoreHistogram)
	Gather.MustRegister(ScanHistogram)
	Gather.MustRegister(ScanErrorCounter)
	Gather.MustRegister(InconsistencyCounter)
	Gather.MustRegister(RebuildCounter)
	Gather.MustRegister(RebuildRowsGauge)
	Gather.MustRegister(collectors.NewGoCollector())
	Gather.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// PushMetrics sends the registry once to a prometheus push gateway. hbck is a
// short-lived tool, so there is no pushing loop.
func PushMetrics(name, instance, addr string) {
	if addr == "" {
		return
	}

	glog.V(0).Infof("%s sends metrics to %s", name, addr)

	pusher := push.New(addr, name).Gatherer(Gather).Grouping("instance", instance)
	err := pusher.Push()
	if err != nil && !strings.HasPrefix(err.Error(), "unexpected status code 200") {
		glog.V(0).Infof("could not push metrics to prometheus push gateway %s: %v", addr, err)
	}
}

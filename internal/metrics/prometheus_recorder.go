package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "contentsync"

// Relations exported on the relation gauge; one series per value.
var relations = []string{"in-sync", "behind", "ahead", "diverged", "unknown", "unconfigured", "invalid-credentials"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	saveResults    *prom.CounterVec
	saveOperations prom.Histogram
	commitDuration *prom.HistogramVec
	syncResults    *prom.CounterVec
	statusRefresh  prom.Histogram
	relation       *prom.GaugeVec
	behindBy       prom.Gauge
	aheadBy        prom.Gauge
	remoteChecks   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the metrics on reg.
// A nil registry gets a fresh private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		saveResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "save_results_total",
			Help:      "Pending-change flushes by outcome",
		}, []string{"result"}),
		saveOperations: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "save_operations",
			Help:      "Number of edit operations per flush",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		commitDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Duration of local and remote commits",
			Buckets:   prom.DefBuckets,
		}, []string{"strategy", "result"}),
		syncResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sync_results_total",
			Help:      "Remote pull attempts by outcome",
		}, []string{"result"}),
		statusRefresh: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "status_refresh_duration_seconds",
			Help:      "Time to recompute sync status including fetch",
			Buckets:   prom.DefBuckets,
		}),
		relation: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_relation",
			Help:      "1 for the current local/remote relation, 0 otherwise",
		}, []string{"relation"}),
		behindBy: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "commits_behind",
			Help:      "Commits on the remote branch missing locally",
		}),
		aheadBy: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "commits_ahead",
			Help:      "Local commits not on the remote branch",
		}),
		remoteChecks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "remote_head_checks_total",
			Help:      "ls-remote head checks by whether the head moved",
		}, []string{"changed"}),
	}
	reg.MustRegister(pr.saveResults, pr.saveOperations, pr.commitDuration, pr.syncResults,
		pr.statusRefresh, pr.relation, pr.behindBy, pr.aheadBy, pr.remoteChecks)
	return pr
}

func (p *PrometheusRecorder) IncSaveResult(result ResultLabel) {
	if p == nil {
		return
	}
	p.saveResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveSaveOperations(n int) {
	if p == nil {
		return
	}
	p.saveOperations.Observe(float64(n))
}

func (p *PrometheusRecorder) ObserveCommitDuration(strategy string, d time.Duration, result ResultLabel) {
	if p == nil {
		return
	}
	p.commitDuration.WithLabelValues(strategy, string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSyncResult(result ResultLabel) {
	if p == nil {
		return
	}
	p.syncResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveStatusRefresh(d time.Duration) {
	if p == nil {
		return
	}
	p.statusRefresh.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetRelation(relation string, behindBy, aheadBy int) {
	if p == nil {
		return
	}
	for _, r := range relations {
		v := 0.0
		if r == relation {
			v = 1
		}
		p.relation.WithLabelValues(r).Set(v)
	}
	p.behindBy.Set(float64(behindBy))
	p.aheadBy.Set(float64(aheadBy))
}

func (p *PrometheusRecorder) IncRemoteHeadCheck(changed bool) {
	if p == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	p.remoteChecks.WithLabelValues(label).Inc()
}

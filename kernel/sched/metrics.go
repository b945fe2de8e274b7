package sched

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposing scheduler-internal
// state, following the promauto-registered-gauge/counter idiom used
// for the corpus's own service metrics. Each Kernel owns a private
// prometheus.Registry rather than registering against the global
// default one, since a process may boot more than one Kernel (as every
// test in this package does) and the default registerer panics on a
// duplicate metric name.
type Metrics struct {
	registry      *prometheus.Registry
	loadAvg       prometheus.Gauge
	readyDepth    prometheus.Gauge
	contextSwitch prometheus.Counter
	donations     prometheus.Counter
	ticks         prometheus.Counter
	pagesInUse    prometheus.Gauge
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		loadAvg: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "corekernel",
			Subsystem: "sched",
			Name:      "load_avg",
			Help:      "Exponentially weighted moving average of the ready-thread count, scaled by 100.",
		}),
		readyDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "corekernel",
			Subsystem: "sched",
			Name:      "ready_queue_depth",
			Help:      "Number of threads currently on the ready list.",
		}),
		contextSwitch: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "corekernel",
			Subsystem: "sched",
			Name:      "context_switches_total",
			Help:      "Number of times schedule() handed control to a different thread.",
		}),
		donations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "corekernel",
			Subsystem: "sched",
			Name:      "priority_donations_total",
			Help:      "Number of times a thread's effective priority was raised by donation.",
		}),
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "corekernel",
			Subsystem: "sched",
			Name:      "ticks_total",
			Help:      "Number of timer ticks delivered.",
		}),
		pagesInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "corekernel",
			Subsystem: "sched",
			Name:      "pages_in_use",
			Help:      "Number of pages currently allocated to thread stacks.",
		}),
	}
}

// Registry returns the Kernel's private metrics registry, for mounting
// behind an HTTP handler (see cmd/kernelsim).
func (k *Kernel) Registry() *prometheus.Registry {
	return k.metrics.registry
}

// observeSwitch is called from scheduleLocked, with the scheduler lock
// held, each time control passes to a different thread; it must not
// block or allocate in a way that could contend with other goroutines,
// so it only increments the switch counter and sets the ready-depth
// gauge.
func (m *Metrics) observeSwitch(k *Kernel) {
	if m == nil {
		return
	}
	m.contextSwitch.Inc()
	m.readyDepth.Set(float64(k.ready.Len()))
}

// observeTick is called once per Tick, with the scheduler lock held.
func (m *Metrics) observeTick(k *Kernel) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.loadAvg.Set(float64(k.loadAvg.MulInt(100).ToIntRound()))
	m.pagesInUse.Set(float64(k.pages.InUse()))
}

// observeDonation records a priority-donation episode.
func (m *Metrics) observeDonation() {
	if m == nil {
		return
	}
	m.donations.Inc()
}

// RunQueueStats is a point-in-time snapshot of scheduler activity,
// grounded on the teacher's FlowController.GetStats() (a value-typed
// aggregate computed under its own lock rather than scraped from
// Prometheus) for callers that want a plain Go struct instead of
// mounting /metrics.
type RunQueueStats struct {
	ReadyDepth       int
	MaxReadyDepth    int
	ContextSwitches  uint64
	DonationEpisodes uint64
}

// GetStats returns a RunQueueStats snapshot of the current ready-queue
// depth, its high-water mark, the total number of context switches
// schedule() has performed, and the total number of priority-donation
// episodes recorded since boot.
func (k *Kernel) GetStats() RunQueueStats {
	old := k.Disable()
	stats := RunQueueStats{
		ReadyDepth:       k.ready.Len(),
		MaxReadyDepth:    k.maxReadyDepth,
		ContextSwitches:  k.contextSwitches,
		DonationEpisodes: k.donationEpisodes,
	}
	k.SetLevel(old)
	return stats
}

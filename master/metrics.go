package master

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ThreadsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_threads_total",
			Help: "Total number of Threads owned by the Master",
		},
	)

	RoutersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_routers_active",
			Help: "1 if a Router is currently Active, 0 otherwise",
		},
	)

	RouterRunCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_runcount",
			Help: "Current runcount of the Active Router",
		},
	)

	HotSwapsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "router_hot_swaps_total",
			Help: "Total number of completed hot swaps",
		},
	)

	TasksRunTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_thread_tasks_run_total",
			Help: "Total number of Task callbacks run, by thread id",
		},
		[]string{"thread"},
	)

	SelectorBackend = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_selector_backend_info",
			Help: "Always 1; labeled by the active ioselect backend kind, by thread id",
		},
		[]string{"thread", "backend"},
	)

	TimerFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_thread_timer_fires_total",
			Help: "Total number of expired Timer callbacks fired, by thread id",
		},
		[]string{"thread"},
	)

	SelectorWakeupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_thread_selector_wakeups_total",
			Help: "Total number of times a thread's SelectSet.Wait call returned, by thread id",
		},
		[]string{"thread"},
	)

	PendingQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_thread_pending_queue_depth",
			Help: "Current number of cross-thread operations queued awaiting this thread's next tick, by thread id",
		},
		[]string{"thread"},
	)
)

func init() {
	prometheus.MustRegister(ThreadsTotal)
	prometheus.MustRegister(RoutersActive)
	prometheus.MustRegister(RouterRunCount)
	prometheus.MustRegister(HotSwapsTotal)
	prometheus.MustRegister(TasksRunTotal)
	prometheus.MustRegister(SelectorBackend)
	prometheus.MustRegister(TimerFiresTotal)
	prometheus.MustRegister(SelectorWakeupsTotal)
	prometheus.MustRegister(PendingQueueDepth)
}

// MetricsHandler returns the Prometheus HTTP handler for the /metrics
// endpoint (SPEC_FULL.md §6's process-level CLI expansion).
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Observe refreshes the gauges that reflect live Master state; callers
// (typically cmd/routerd, on a periodic ticker) call this before serving
// a /metrics scrape.
//
// TasksRunTotal is a Counter, but Thread.TasksRun reports a monotonic
// lifetime total rather than a since-last-Observe delta, so Observe tracks
// the last-seen value per thread id and Adds only the difference.
func (m *Master) Observe() {
	threads := m.Threads()
	ThreadsTotal.Set(float64(len(threads)))
	for _, t := range threads {
		id := strconv.Itoa(t.ID())
		SelectorBackend.WithLabelValues(id, t.Selector().Kind()).Set(1)
		PendingQueueDepth.WithLabelValues(id).Set(float64(t.PendingQueueDepth()))

		m.tasksRunMu.Lock()
		if m.tasksRunSeen == nil {
			m.tasksRunSeen = make(map[int]uint64)
		}
		if m.timersFiredSeen == nil {
			m.timersFiredSeen = make(map[int]uint64)
		}
		if m.selectorWakeSeen == nil {
			m.selectorWakeSeen = make(map[int]uint64)
		}

		run := t.TasksRun()
		prevRun := m.tasksRunSeen[t.ID()]
		m.tasksRunSeen[t.ID()] = run

		fired := t.TimersFired()
		prevFired := m.timersFiredSeen[t.ID()]
		m.timersFiredSeen[t.ID()] = fired

		wakes := t.SelectorWakeups()
		prevWakes := m.selectorWakeSeen[t.ID()]
		m.selectorWakeSeen[t.ID()] = wakes
		m.tasksRunMu.Unlock()

		if run > prevRun {
			TasksRunTotal.WithLabelValues(id).Add(float64(run - prevRun))
		}
		if fired > prevFired {
			TimerFiresTotal.WithLabelValues(id).Add(float64(fired - prevFired))
		}
		if wakes > prevWakes {
			SelectorWakeupsTotal.WithLabelValues(id).Add(float64(wakes - prevWakes))
		}
	}

	r := m.ActiveRouter()
	if r == nil {
		RoutersActive.Set(0)
		return
	}
	RoutersActive.Set(1)
	RouterRunCount.Set(float64(r.RunCount()))
}

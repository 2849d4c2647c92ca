package taskmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tasksActive is the number of pending or running tasks in this process
	tasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lintgate_async_tasks_active",
		Help: "Async tasks not yet in a terminal state",
	})

	// tasksFinished counts terminal transitions by status
	tasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lintgate_async_tasks_finished_total",
		Help: "Async tasks that reached a terminal state, by status",
	}, []string{"status"})

	// persistFailures counts swallowed store errors
	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lintgate_async_task_persist_failures_total",
		Help: "Terminal task writes that failed",
	})
)

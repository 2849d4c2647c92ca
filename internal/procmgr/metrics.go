package procmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// forks counts ForkValidation outcomes: started, duplicate, failed
	forks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lintgate_validation_forks_total",
		Help: "Background validation spawn attempts by outcome",
	}, []string{"outcome"})

	zombiesReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lintgate_zombies_reaped_total",
		Help: "Exited child processes reaped",
	})

	markersPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lintgate_stale_pid_markers_pruned_total",
		Help: "PID markers removed because their process was gone",
	})

	runsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lintgate_validation_runs_total",
		Help: "Completed background validation runs by result",
	}, []string{"result"})
)

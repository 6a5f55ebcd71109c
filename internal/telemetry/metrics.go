package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// --- Executor ---

	// ExecutorSubmitsTotal — попытки dispatch, по результату (spawned, spawn_failed, rejected).
	ExecutorSubmitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outpost",
		Subsystem: "executor",
		Name:      "submits_total",
		Help:      "Total task submissions, labelled by result.",
	}, []string{"result"})

	// ExecutorReconciledTotal — терминальные статусы, обработанные sync.
	ExecutorReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outpost",
		Subsystem: "executor",
		Name:      "reconciled_total",
		Help:      "Total tasks reconciled, labelled by terminal status.",
	}, []string{"status"})

	// ExecutorStoreErrorsTotal — ошибки обращения к общему хранилищу.
	ExecutorStoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outpost",
		Subsystem: "executor",
		Name:      "store_errors_total",
		Help:      "State store errors seen by the reconciliation loop, labelled by operation.",
	}, []string{"op"})

	// ExecutorInFlight — размер InFlightSet.
	ExecutorInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "outpost",
		Subsystem: "executor",
		Name:      "tasks_inflight",
		Help:      "Tasks dispatched and not yet reconciled.",
	})

	// ExecutorSyncDuration — длительность одного прохода sync.
	ExecutorSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "outpost",
		Subsystem: "executor",
		Name:      "sync_duration_seconds",
		Help:      "Duration of one reconciliation pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// --- Worker ---

	// WorkerExecutionsTotal — выполненные payload'ы, по статусу.
	WorkerExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outpost",
		Subsystem: "worker",
		Name:      "executions_total",
		Help:      "Total payloads executed, labelled by published status.",
	}, []string{"status"})

	// WorkerExecutionDuration — длительность дочернего процесса.
	WorkerExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "outpost",
		Subsystem: "worker",
		Name:      "execution_duration_seconds",
		Help:      "Wall time of the unit-of-work child process.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	})

	// WorkerRejectedTotal — payload'ы, отклонённые до выполнения.
	WorkerRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "outpost",
		Subsystem: "worker",
		Name:      "rejected_total",
		Help:      "Malformed payloads rejected without execution.",
	})

	// WorkerArchiveFailuresTotal — неудачные записи архива логов.
	WorkerArchiveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "outpost",
		Subsystem: "worker",
		Name:      "archive_failures_total",
		Help:      "Log archive writes that failed (task status unaffected).",
	})

	// --- API ---

	// APIRequestsTotal — HTTP-запросы к API executor'а, по маршруту и статусу.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outpost",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests handled by the executor API, labelled by route and status.",
	}, []string{"route", "status"})

	// --- Notify ---

	// NotifyDeliveriesTotal — доставки уведомлений, по sink и результату (ok, error).
	NotifyDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outpost",
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Completion notifications delivered, labelled by sink and result.",
	}, []string{"sink", "result"})
)

package metrics

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	StoreBackendSQL   = "sql"
	StoreBackendRedis = "redis"
)

const (
	StoreOpTryIncrement = "try_increment"
	StoreOpGet          = "get"
)

const (
	StoreErrorReasonDeadlineExceeded     = "deadline_exceeded"
	StoreErrorReasonDBLockTimeout        = "db_lock_timeout"
	StoreErrorReasonSerializationFailure = "serialization_failure"
	StoreErrorReasonUniqueViolation      = "unique_violation"
	StoreErrorReasonConnection           = "connection"
	StoreErrorReasonScript               = "script"
	StoreErrorReasonUnknown              = "unknown"
)

// StoreMetrics captures usage store latency and failures on the prometheus registry.
type StoreMetrics struct {
	opDuration *prometheus.HistogramVec
	opErrors   *prometheus.CounterVec
	decisions  *prometheus.CounterVec
}

var (
	storeMetricsOnce sync.Once
	storeMetrics     *StoreMetrics
)

// Store returns the singleton store metrics registry.
func Store() *StoreMetrics {
	return StoreWithConfig(Config{})
}

// StoreWithConfig returns the singleton store metrics registry using config labels.
func StoreWithConfig(cfg Config) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = newStoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storeMetrics
}

// ResetStoreMetricsForTest resets the store metrics singleton for tests.
func ResetStoreMetricsForTest() {
	storeMetricsOnce = sync.Once{}
	storeMetrics = nil
}

func newStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "studyquota"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "studyquota_store_operation_duration_seconds",
		Help:        "Usage store operation latency by backend and operation.",
		Buckets:     []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		ConstLabels: constLabels,
	}, []string{"backend", "op"})
	opErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "studyquota_store_operation_errors_total",
		Help:        "Usage store failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"backend", "op", "reason"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "studyquota_store_increments_total",
		Help:        "Bounded increments by backend and whether the slot was granted.",
		ConstLabels: constLabels,
	}, []string{"backend", "granted"})

	registerer.MustRegister(opDuration, opErrors, decisions)

	return &StoreMetrics{
		opDuration: opDuration,
		opErrors:   opErrors,
		decisions:  decisions,
	}
}

// ObserveOperation records latency and, when err is set, a classified failure.
func (m *StoreMetrics) ObserveOperation(backend, op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(backend, op).Observe(elapsed.Seconds())
	if err != nil {
		m.opErrors.WithLabelValues(backend, op, ClassifyStoreErrorReason(err)).Inc()
	}
}

func (m *StoreMetrics) IncIncrement(backend string, granted bool) {
	if m == nil {
		return
	}
	value := "false"
	if granted {
		value = "true"
	}
	m.decisions.WithLabelValues(backend, value).Inc()
}

// ClassifyStoreErrorReason maps a store failure to a metric label.
func ClassifyStoreErrorReason(err error) string {
	if err == nil {
		return StoreErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StoreErrorReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return StoreErrorReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return StoreErrorReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return StoreErrorReasonUniqueViolation
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return StoreErrorReasonConnection
	}
	if strings.Contains(err.Error(), "NOSCRIPT") || strings.Contains(err.Error(), "ERR Error running script") {
		return StoreErrorReasonScript
	}
	return StoreErrorReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

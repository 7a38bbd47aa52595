// Package metrics holds the Prometheus collectors for the device and PIN
// security layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configures the collectors.
type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// Metrics exposes the collectors used by the services and HTTP layer.
type Metrics struct {
	LoginTransitions    *prometheus.CounterVec
	PinVerifications    *prometheus.CounterVec
	DeviceBlocks        prometheus.Counter
	DeviceBlockFailures prometheus.Counter
	DeviceRegistrations *prometheus.CounterVec
	Requests            *prometheus.CounterVec
	Duration            *prometheus.HistogramVec
}

// New constructs the collectors and registers them with the provided registerer.
func New(opts Options) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "hris"
	}

	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "guard"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "login_transitions_total",
		Help:      "Login flow state transitions partitioned by target state.",
	}, []string{"state"}))
	if err != nil {
		return nil, err
	}

	pins, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pin_verifications_total",
		Help:      "PIN verification attempts partitioned by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	blocks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "device_blocks_total",
		Help:      "Devices blocked by lockout or administrators.",
	}))
	if err != nil {
		return nil, err
	}

	blockFailures, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "device_block_failures_total",
		Help:      "Lockouts whose device block could not be written.",
	}))
	if err != nil {
		return nil, err
	}

	registrations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "device_registrations_total",
		Help:      "Device registrations partitioned by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets:   buckets,
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		LoginTransitions:    transitions,
		PinVerifications:    pins,
		DeviceBlocks:        blocks,
		DeviceBlockFailures: blockFailures,
		DeviceRegistrations: registrations,
		Requests:            requests,
		Duration:            duration,
	}, nil
}

// register registers c, reusing an identical collector registered earlier.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.LoginTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) ObservePinVerification(result string) {
	if m == nil {
		return
	}
	m.PinVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDeviceBlock() {
	if m == nil {
		return
	}
	m.DeviceBlocks.Inc()
}

func (m *Metrics) ObserveDeviceBlockFailure() {
	if m == nil {
		return
	}
	m.DeviceBlockFailures.Inc()
}

func (m *Metrics) ObserveDeviceRegistration(result string) {
	if m == nil {
		return
	}
	m.DeviceRegistrations.WithLabelValues(result).Inc()
}

// Handler returns a chi middleware that records request count and latency.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.Requests.With(labels).Inc()
		m.Duration.With(labels).Observe(time.Since(start).Seconds())
	})
}

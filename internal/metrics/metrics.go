package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	CaptureCounter         *prometheus.CounterVec
	CaptureRunTimeSummary  *prometheus.SummaryVec
	BatchCounter           *prometheus.CounterVec
	DeviceUp               *prometheus.GaugeVec
	LastCaptureTimestamp   *prometheus.GaugeVec
	ArtifactSizeBytes      *prometheus.GaugeVec
	QueueDepth             prometheus.Gauge
	QueueDropped           prometheus.Counter
	ScheduledFiresCounter  *prometheus.CounterVec
	SchedulesRegisteredNum prometheus.Gauge
)

func init() {
	CaptureCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCaptures,
			Help:      "A counter metric to measure the total count of device captures by tier and outcome",
		},
		[]string{"tier", "result"},
	)

	CaptureRunTimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      MetricCaptureDuration,
			Help:      "A summary metric to measure the time spent capturing a device configuration",
		},
		[]string{"result"},
	)

	BatchCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricBatches,
			Help:      "A counter metric to measure batch captures over the whole registry",
		},
		[]string{"result"},
	)

	DeviceUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricDeviceUp,
			Help:      "1 if the last capture of the device succeeded",
		},
		[]string{"hostname"},
	)

	LastCaptureTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricLastCaptureTs,
			Help:      "Unix timestamp of the last capture attempt per device",
		},
		[]string{"hostname"},
	)

	ArtifactSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricArtifactSizeBytes,
			Help:      "Size of the last artifact written per device",
		},
		[]string{"hostname"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricQueueDepth,
			Help:      "Number of capture jobs waiting in the queue",
		},
	)

	QueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricQueueDropped,
			Help:      "A counter metric to measure capture jobs rejected because the queue was full",
		},
	)

	ScheduledFiresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricScheduledFires,
			Help:      "A counter metric to measure schedule triggers fired",
		},
		[]string{"kind", "result"},
	)

	SchedulesRegisteredNum = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricSchedules,
			Help:      "Number of schedules registered with the driver",
		},
	)
}

// ObserveCapture records the outcome of one device capture.
func ObserveCapture(hostname, tier string, success bool, size int, elapsed time.Duration) {
	result := "failed"
	up := 0.0

	if tier == "" {
		tier = "none"
	}

	if success {
		result = "success"
		up = 1
		ArtifactSizeBytes.WithLabelValues(hostname).Set(float64(size))
	}

	CaptureCounter.WithLabelValues(tier, result).Inc()
	CaptureRunTimeSummary.WithLabelValues(result).Observe(elapsed.Seconds())
	DeviceUp.WithLabelValues(hostname).Set(up)
	LastCaptureTimestamp.WithLabelValues(hostname).Set(float64(time.Now().Unix()))
}

// HealthFunc reports whether the service is able to run captures.
type HealthFunc func() error

// Server exposes /metrics and /health.
type Server struct {
	srv    *http.Server
	mux    *http.ServeMux
	logger *logrus.Logger
}

func NewServer(addr string, health HealthFunc, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}

		_, _ = w.Write([]byte("ok\n"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 2 * time.Second, // nolint:gomnd // time duration value is clear as is.
		},
		mux:    mux,
		logger: logger,
	}
}

// ListenAndServe serves in the background until Shutdown.
func (s *Server) ListenAndServe() {
	go func() {
		s.logger.WithField("addr", s.srv.Addr).Info("metrics endpoint listening")

		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics endpoint stopped")
		}
	}()
}

// Handle registers an additional handler, it must be called before
// ListenAndServe.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"waterlog/internal/intake"
)

// metrics holds the collectors of one router. Each router gets its own
// registry so several can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	intakeML prometheus.Counter
	entries  prometheus.Counter
}

func newMetrics(svc Service) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		intakeML: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waterlog_intake_ml_total",
			Help: "Millilitres recorded since the server started.",
		}),
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waterlog_entries_total",
			Help: "Intake entries recorded since the server started.",
		}),
	}

	// Evaluated at scrape time so the gauge rolls over at midnight.
	todayTotal := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "waterlog_today_total_ml",
		Help: "Millilitres recorded today.",
	}, func() float64 {
		return float64(svc.Progress().TodayTotal)
	})

	m.registry.MustRegister(
		m.requests, m.latency, m.intakeML, m.entries, todayTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// observe records a tracker event.
func (m *metrics) observe(ev intake.Event) {
	if ev.Kind != intake.EventEntryAdded {
		return
	}
	m.intakeML.Add(float64(ev.Entry.Amount))
	m.entries.Inc()
}

// middleware counts requests and records latency by route template.
func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

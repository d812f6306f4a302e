package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/renanvieira/wire-img/internal/instance"
)

type Options struct {
	Labels prometheus.Labels
}

func copyLabels(p prometheus.Labels) prometheus.Labels {
	x := prometheus.Labels{}
	for k, v := range p {
		x[k] = v
	}

	return x
}

func New(o Options) instance.Prometheus {
	totalSuccessfulRequests := copyLabels(o.Labels)
	totalFailedRequests := copyLabels(o.Labels)
	totalSuccessfulIngests := copyLabels(o.Labels)
	totalFailedIngests := copyLabels(o.Labels)
	currentRequests := copyLabels(o.Labels)
	requestDurationSeconds := copyLabels(o.Labels)
	ingestDurationSeconds := copyLabels(o.Labels)
	totalBytesServed := copyLabels(o.Labels)
	totalBytesIngested := copyLabels(o.Labels)
	inputFileTypes := copyLabels(o.Labels)
	droppedEvents := copyLabels(o.Labels)

	totalSuccessfulRequests["state"] = "successful"
	totalFailedRequests["state"] = "failed"
	totalSuccessfulIngests["state"] = "successful"
	totalFailedIngests["state"] = "failed"

	return &Instance{
		totalSuccessfulRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wire_img",
			Name:        "total_requests",
			Help:        "The total number of successful delivery requests",
			ConstLabels: totalSuccessfulRequests,
		}),
		totalFailedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wire_img",
			Name:        "total_requests",
			Help:        "The total number of failed delivery requests",
			ConstLabels: totalFailedRequests,
		}),
		totalSuccessfulIngests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wire_img",
			Name:        "total_ingests",
			Help:        "The total number of successfully ingested files",
			ConstLabels: totalSuccessfulIngests,
		}),
		totalFailedIngests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wire_img",
			Name:        "total_ingests",
			Help:        "The total number of failed ingests",
			ConstLabels: totalFailedIngests,
		}),
		currentRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "wire_img",
			Name:        "current_requests",
			Help:        "The current number of in-flight delivery requests",
			ConstLabels: currentRequests,
		}),
		requestDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "wire_img",
			Name:        "request_duration_seconds",
			Help:        "The seconds spent serving delivery requests",
			ConstLabels: requestDurationSeconds,
		}),
		ingestDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "wire_img",
			Name:        "ingest_duration_seconds",
			Help:        "The seconds spent ingesting files",
			ConstLabels: ingestDurationSeconds,
		}),
		totalBytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wire_img",
			Name:        "total_bytes_served",
			Help:        "The total number of image bytes served",
			ConstLabels: totalBytesServed,
		}),
		totalBytesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wire_img",
			Name:        "total_bytes_ingested",
			Help:        "The total number of image bytes read from the watch directory",
			ConstLabels: totalBytesIngested,
		}),
		inputFileTypes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "wire_img",
			Name:        "input_file_types",
			Help:        "The mime types of ingested files",
			ConstLabels: inputFileTypes,
		}, []string{"type"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wire_img",
			Name:        "dropped_events",
			Help:        "The number of filesystem notifications dropped because the queue was full",
			ConstLabels: droppedEvents,
		}),
	}
}

type Instance struct {
	totalSuccessfulRequests prometheus.Counter
	totalFailedRequests     prometheus.Counter
	totalSuccessfulIngests  prometheus.Counter
	totalFailedIngests      prometheus.Counter
	currentRequests         prometheus.Gauge
	requestDurationSeconds  prometheus.Histogram
	ingestDurationSeconds   prometheus.Histogram

	totalBytesServed   prometheus.Counter
	totalBytesIngested prometheus.Counter
	inputFileTypes     *prometheus.CounterVec
	droppedEvents      prometheus.Counter
}

func (m *Instance) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.currentRequests,
		m.requestDurationSeconds,
		m.ingestDurationSeconds,
		m.totalFailedRequests,
		m.totalSuccessfulRequests,
		m.totalFailedIngests,
		m.totalSuccessfulIngests,

		m.totalBytesServed,
		m.totalBytesIngested,
		m.inputFileTypes,
		m.droppedEvents,
	)
}

func (m *Instance) StartRequest() func(success bool) {
	start := time.Now()
	m.currentRequests.Inc()

	return func(success bool) {
		if success {
			m.totalSuccessfulRequests.Inc()
		} else {
			m.totalFailedRequests.Inc()
		}
		m.currentRequests.Dec()
		m.requestDurationSeconds.Observe(float64(time.Since(start)/time.Millisecond) / 1000)
	}
}

func (m *Instance) StartIngest() func(success bool) {
	start := time.Now()

	return func(success bool) {
		if success {
			m.totalSuccessfulIngests.Inc()
		} else {
			m.totalFailedIngests.Inc()
		}
		m.ingestDurationSeconds.Observe(float64(time.Since(start)/time.Millisecond) / 1000)
	}
}

func (m *Instance) TotalBytesServed(bytes int) {
	m.totalBytesServed.Add(float64(bytes))
}

func (m *Instance) TotalBytesIngested(bytes int) {
	m.totalBytesIngested.Add(float64(bytes))
}

func (m *Instance) InputFileType(mime string) {
	m.inputFileTypes.WithLabelValues(mime).Inc()
}

func (m *Instance) EventDropped() {
	m.droppedEvents.Inc()
}

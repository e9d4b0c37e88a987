package hpx

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hpx"

// metrics holds the Prometheus collectors of one client. A nil *metrics
// records nothing.
type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	connectsTotal   *prometheus.CounterVec
	disconnects     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, client string) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}
	labels := prometheus.Labels{"client": client}

	m := &metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "requests_total",
			Help:        "Total number of request/response exchanges by result code",
			ConstLabels: labels,
		}, []string{"code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Name:        "request_duration_seconds",
			Help:        "Time from writing a request to receiving its response",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "sent_bytes_total",
			Help:        "Framed bytes written to the server",
			ConstLabels: labels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "received_bytes_total",
			Help:        "Bytes read from the server",
			ConstLabels: labels,
		}),
		connectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "connects_total",
			Help:        "Connect attempts by result code",
			ConstLabels: labels,
		}, []string{"code"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "disconnects_total",
			Help:        "Connections dropped after a transport failure",
			ConstLabels: labels,
		}),
	}

	if err := register(reg, &m.requestsTotal); err != nil {
		return nil, err
	}
	if err := register(reg, &m.requestDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.bytesSent); err != nil {
		return nil, err
	}
	if err := register(reg, &m.bytesReceived); err != nil {
		return nil, err
	}
	if err := register(reg, &m.connectsTotal); err != nil {
		return nil, err
	}
	if err := register(reg, &m.disconnects); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds *c to reg. When an identical collector is already
// registered, for example by an earlier client with the same name, *c is
// replaced by the existing one.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			*c = existing
			return nil
		}
	}
	return errors.Wrap(err, "register metrics")
}

func resultCode(err error) string {
	if err == nil {
		return "ok"
	}
	return strconv.Itoa(int(CodeOf(err)))
}

func (m *metrics) observeRequest(start time.Time, sent, received int, err error) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(resultCode(err)).Inc()
	m.requestDuration.Observe(time.Since(start).Seconds())
	m.bytesSent.Add(float64(sent))
	m.bytesReceived.Add(float64(received))
}

func (m *metrics) observeConnect(err error) {
	if m == nil {
		return
	}
	m.connectsTotal.WithLabelValues(resultCode(err)).Inc()
}

func (m *metrics) observeDisconnect() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
}

package metrics

import (
	"errors"
	"regexp"

	"github.com/tarmac-project/kvbridge"
	proto "github.com/tarmac-project/protobuf-go/sdk/metrics"
	wapc "github.com/wapc/wapc-guest-tinygo"
	pb "google.golang.org/protobuf/proto"
)

const (
	capabilityName = "metrics"
	fnCounter      = "counter"
	fnGauge        = "gauge"
	fnHistogram    = "histogram"
	actionInc      = "inc"
	actionDec      = "dec"
)

var (
	// ErrInvalidMetricName indicates a metric name that does not match the supported format.
	ErrInvalidMetricName = errors.New("metric name is invalid")

	// isMetricNameValid validates metric names using the same pattern as tarmac callback validation.
	isMetricNameValid = regexp.MustCompile(`^[a-zA-Z0-9_:][a-zA-Z0-9_:]*$`)
)

// Client defines the metrics capability interface.
type Client interface {
	// NewCounter creates a named counter metric handle.
	NewCounter(name string) (*Counter, error)

	// NewGauge creates a named gauge metric handle.
	NewGauge(name string) (*Gauge, error)

	// NewHistogram creates a named histogram metric handle.
	NewHistogram(name string) (*Histogram, error)
}

// Config controls how a Client instance interacts with the host runtime.
type Config struct {
	// SDKConfig provides the runtime namespace used for host calls.
	SDKConfig kvbridge.RuntimeConfig

	// HostCall overrides the waPC host function used for metrics operations.
	HostCall kvbridge.HostCall
}

// HostMetrics is the metrics capability client implementation.
type HostMetrics struct {
	runtime  kvbridge.RuntimeConfig
	hostCall kvbridge.HostCall
}

// handle is the shared state behind every metric type.
type handle struct {
	name      string
	namespace string
	hostCall  kvbridge.HostCall
}

// Counter is a named counter metric handle.
type Counter struct{ handle }

// Gauge is a named gauge metric handle.
type Gauge struct{ handle }

// Histogram is a named histogram metric handle.
type Histogram struct{ handle }

// Ensure HostMetrics satisfies the Client interface at compile time.
var _ Client = (*HostMetrics)(nil)

// New creates a metrics client with namespace defaults and optional host-call override.
func New(config Config) (*HostMetrics, error) {
	hostCall := config.HostCall
	if hostCall == nil {
		hostCall = wapc.HostCall
	}

	return &HostMetrics{runtime: config.SDKConfig.WithDefaults(), hostCall: hostCall}, nil
}

// Discard returns a client whose metric handles drop every update.
func Discard() *HostMetrics {
	return &HostMetrics{
		runtime:  kvbridge.RuntimeConfig{}.WithDefaults(),
		hostCall: func(string, string, string, []byte) ([]byte, error) { return nil, nil },
	}
}

func (c *HostMetrics) handle(name string) (handle, error) {
	if !isMetricNameValid.MatchString(name) {
		return handle{}, ErrInvalidMetricName
	}
	return handle{name: name, namespace: c.runtime.Namespace, hostCall: c.hostCall}, nil
}

// NewCounter creates a named counter metric handle.
func (c *HostMetrics) NewCounter(name string) (*Counter, error) {
	h, err := c.handle(name)
	if err != nil {
		return nil, err
	}
	return &Counter{h}, nil
}

// NewGauge creates a named gauge metric handle.
func (c *HostMetrics) NewGauge(name string) (*Gauge, error) {
	h, err := c.handle(name)
	if err != nil {
		return nil, err
	}
	return &Gauge{h}, nil
}

// NewHistogram creates a named histogram metric handle.
func (c *HostMetrics) NewHistogram(name string) (*Histogram, error) {
	h, err := c.handle(name)
	if err != nil {
		return nil, err
	}
	return &Histogram{h}, nil
}

// send marshals msg and forwards it to the host as a best-effort call.
func (h handle) send(fn string, msg pb.Message) {
	payload, err := pb.Marshal(msg)
	if err != nil {
		return
	}
	_, _ = h.hostCall(h.namespace, capabilityName, fn, payload)
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.send(fnCounter, &proto.MetricsCounter{Name: c.name})
}

// Inc increments the gauge by one.
func (g *Gauge) Inc() {
	g.send(fnGauge, &proto.MetricsGauge{Name: g.name, Action: actionInc})
}

// Dec decrements the gauge by one.
func (g *Gauge) Dec() {
	g.send(fnGauge, &proto.MetricsGauge{Name: g.name, Action: actionDec})
}

// Observe records a value for the histogram.
func (h *Histogram) Observe(value float64) {
	h.send(fnHistogram, &proto.MetricsHistogram{Name: h.name, Value: value})
}

package observability

import "time"

// MetricsClient defines the interface for recording metrics
type MetricsClient interface {
	// IncrementCounter increments a counter without labels
	IncrementCounter(name string, value float64)
	// IncrementCounterWithLabels is the preferred method with labels support
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordLatency(operation string, duration time.Duration)

	// RecordCacheOperation records a cache operation outcome and duration
	RecordCacheOperation(operation string, hit bool, duration time.Duration)

	// Close releases any resources held by the client
	Close() error
}

// NewMetricsClient creates the default metrics client
func NewMetricsClient() MetricsClient {
	return NewNoopMetricsClient()
}

// noopMetricsClient is a no-op implementation of MetricsClient
type noopMetricsClient struct{}

// NewNoopMetricsClient creates a metrics client that records nothing
func NewNoopMetricsClient() MetricsClient {
	return &noopMetricsClient{}
}

func (n *noopMetricsClient) IncrementCounter(name string, value float64) {}
func (n *noopMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
}
func (n *noopMetricsClient) RecordGauge(name string, value float64, labels map[string]string)     {}
func (n *noopMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}
func (n *noopMetricsClient) RecordLatency(operation string, duration time.Duration)               {}
func (n *noopMetricsClient) RecordCacheOperation(operation string, hit bool, duration time.Duration) {
}
func (n *noopMetricsClient) Close() error { return nil }

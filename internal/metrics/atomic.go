// Package metrics holds run counters: cheap atomic counters for hot paths
// and Prometheus collectors for the optional /metrics listener.
package metrics

import "sync/atomic"

// Counter is a simple atomic counter with convenience methods.
type Counter struct {
	value int64
}

// Add adds delta to the counter and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.value, delta)
}

// Inc increments the counter by 1.
func (c *Counter) Inc() int64 {
	return atomic.AddInt64(&c.value, 1)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64(&c.value)
}

// Store sets the value.
func (c *Counter) Store(val int64) {
	atomic.StoreInt64(&c.value, val)
}

// Reset sets the counter to 0.
func (c *Counter) Reset() {
	atomic.StoreInt64(&c.value, 0)
}

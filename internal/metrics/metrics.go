// Package metrics defines the observability hooks of logfs.
//
// Implementations are optional: pass nil to disable collection. The
// Prometheus implementation lives in the prometheus subpackage and only
// produces collectors after InitRegistry has been called.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FSMetrics collects per-operation statistics of the filesystem core.
type FSMetrics interface {
	// RecordOperation records one completed core operation.
	//
	// Parameters:
	//   - op: operation name (e.g. "lookup", "iterate", "mkdir")
	//   - outcome: "ok" or a short failure code (e.g. "out_of_memory")
	//   - duration: time taken by the operation
	RecordOperation(op string, outcome string, duration time.Duration)

	// SetMountedInstances updates the number of live mounted instances.
	SetMountedInstances(n int)

	// SetLiveInodes updates the number of inodes held by the instance on device.
	SetLiveInodes(device string, n int64)
}

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide registry and enables metrics.
// Calling it again returns the existing registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// ResetRegistry disables metrics again. Intended for tests.
func ResetRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}

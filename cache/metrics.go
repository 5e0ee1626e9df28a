package cache

import (
	"time"

	"github.com/IvanBrykalov/refreshcache/store"
)

// RefreshOutcome classifies how a refresh flight ended.
type RefreshOutcome int

const (
	// RefreshOK — the fallback returned a result.
	RefreshOK RefreshOutcome = iota
	// RefreshError — the fallback returned an error; nothing was written.
	RefreshError
	// RefreshTimeout — the fallback exceeded the refresh timeout.
	RefreshTimeout
)

// String returns a stable label for the outcome, suitable for metrics.
func (o RefreshOutcome) String() string {
	switch o {
	case RefreshError:
		return "error"
	case RefreshTimeout:
		return "timeout"
	default:
		return "ok"
	}
}

// Metrics exposes instance-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason store.Reason)
	Refresh(outcome RefreshOutcome)
	ObserveRefresh(d time.Duration)
	Size(entries int)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                         {}
func (NoopMetrics) Miss()                        {}
func (NoopMetrics) Evict(store.Reason)           {}
func (NoopMetrics) Refresh(RefreshOutcome)       {}
func (NoopMetrics) ObserveRefresh(time.Duration) {}
func (NoopMetrics) Size(int)                     {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}

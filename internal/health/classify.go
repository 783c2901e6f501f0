// Package health periodically classifies agent liveness from heartbeat
// age and alerts on critical/offline transitions.
package health

import "time"

// Classification is an agent's liveness bucket.
type Classification string

const (
	Healthy  Classification = "healthy"
	Warning  Classification = "warning"
	Critical Classification = "critical"
	Offline  Classification = "offline"
)

// Default thresholds in seconds, overridable via Thresholds.
const (
	DefaultWarningSeconds  = 120
	DefaultCriticalSeconds = 300
	DefaultOfflineSeconds  = 600
)

// Thresholds bounds the elapsed-seconds ranges that separate
// healthy/warning/critical/offline.
type Thresholds struct {
	WarningSeconds  int
	CriticalSeconds int
	OfflineSeconds  int
}

// DefaultThresholds returns the default {120, 300, 600} second bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarningSeconds:  DefaultWarningSeconds,
		CriticalSeconds: DefaultCriticalSeconds,
		OfflineSeconds:  DefaultOfflineSeconds,
	}
}

func (t Thresholds) normalized() Thresholds {
	if t.WarningSeconds <= 0 {
		t.WarningSeconds = DefaultWarningSeconds
	}
	if t.CriticalSeconds <= 0 {
		t.CriticalSeconds = DefaultCriticalSeconds
	}
	if t.OfflineSeconds <= 0 {
		t.OfflineSeconds = DefaultOfflineSeconds
	}
	return t
}

// Classify maps a possibly-nil last heartbeat timestamp to a
// Classification bucket by heartbeat age. A nil lastHeartbeat (never
// seen) is always offline.
func Classify(lastHeartbeat *time.Time, now time.Time, t Thresholds) Classification {
	if lastHeartbeat == nil {
		return Offline
	}
	t = t.normalized()
	elapsed := now.Sub(*lastHeartbeat).Seconds()
	switch {
	case elapsed < float64(t.WarningSeconds):
		return Healthy
	case elapsed < float64(t.CriticalSeconds):
		return Warning
	case elapsed < float64(t.OfflineSeconds):
		return Critical
	default:
		return Offline
	}
}

// SecondsSinceHeartbeat returns the elapsed seconds since lastHeartbeat,
// or nil if there has never been one.
func SecondsSinceHeartbeat(lastHeartbeat *time.Time, now time.Time) *int64 {
	if lastHeartbeat == nil {
		return nil
	}
	s := int64(now.Sub(*lastHeartbeat).Seconds())
	return &s
}

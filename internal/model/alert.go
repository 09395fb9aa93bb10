package model

import "time"

// AlertKind identifies the detector that raised an alert.
type AlertKind string

const (
	KindFailover  AlertKind = "failover"
	KindErrorRate AlertKind = "error_rate"
)

// Failover is an observed switch of the serving pool.
type Failover struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Alert is a formatted notification ready for dispatch.
type Alert struct {
	ID        string            `json:"id"`
	Kind      AlertKind         `json:"kind"`
	DedupKey  string            `json:"dedup_key"`
	Timestamp time.Time         `json:"timestamp"`
	Summary   string            `json:"summary"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AlertRecord is what happened to an alert once the dispatcher saw it.
type AlertRecord struct {
	Alert    Alert  `json:"alert"`
	Decision string `json:"decision"`        // dispatched, suppressed_maintenance, suppressed_cooldown
	Error    string `json:"error,omitempty"` // delivery failure, if any
}

package model

import "time"

type EventType string

const (
	EventInitialized EventType = "initialized"
	EventTriggered   EventType = "triggered"
	EventRejected    EventType = "rejected"
)

type GateEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	Identity    string    `json:"identity"`
	Caller      string    `json:"caller,omitempty"`
	IntervalSec uint32    `json:"interval_sec,omitempty"`
	Expiry      uint64    `json:"expiry,omitempty"`
}

type GateStats struct {
	Triggers   int    `json:"triggers"`
	Rejections int    `json:"rejections"`
	LastExpiry uint64 `json:"last_expiry"`
}

package types

import "time"

// HealthStatus represents the overall subsystem health status
type HealthStatus struct {
	Healthy            bool              `json:"healthy"`
	Timestamp          time.Time         `json:"timestamp"`
	StartTime          time.Time         `json:"start_time"`
	Uptime             time.Duration     `json:"uptime"`
	Details            []ComponentStatus `json:"details,omitempty"`
	LongRunningQueries []SessionInfo     `json:"long_running_queries,omitempty"`
	BlockingQueries    []SessionInfo     `json:"blocking_queries,omitempty"`
}

// ComponentStatus represents individual component status
type ComponentStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

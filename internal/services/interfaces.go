// Package services starts and stops the long-running parts of the server
// (HTTP listener, scheduler, content watcher, notifier) in dependency order.
package services

import (
	"context"
	"time"
)

// ManagedService is a component with a start/stop lifecycle.
type ManagedService interface {
	// Name identifies the service in logs and health output.
	Name() string

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Health() HealthStatus

	// Dependencies names services that must start first.
	Dependencies() []string
}

// HealthStatus represents the health of a managed service.
type HealthStatus struct {
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	CheckAt time.Time `json:"check_at"`
}

// HealthStatusHealthy returns a healthy status stamped now.
func HealthStatusHealthy() HealthStatus {
	return HealthStatus{Status: "healthy", CheckAt: time.Now()}
}

// HealthStatusUnhealthy returns an unhealthy status with message.
func HealthStatusUnhealthy(message string) HealthStatus {
	return HealthStatus{Status: "unhealthy", Message: message, CheckAt: time.Now()}
}

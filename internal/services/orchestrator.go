package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// ServiceStatus represents the current state of a service.
type ServiceStatus string

const (
	StatusNotStarted ServiceStatus = "not_started"
	StatusStarting   ServiceStatus = "starting"
	StatusRunning    ServiceStatus = "running"
	StatusStopping   ServiceStatus = "stopping"
	StatusStopped    ServiceStatus = "stopped"
	StatusFailed     ServiceStatus = "failed"
)

// ServiceInfo contains metadata about a managed service.
type ServiceInfo struct {
	Name         string        `json:"name"`
	Status       ServiceStatus `json:"status"`
	Health       HealthStatus  `json:"health"`
	Dependencies []string      `json:"dependencies"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Orchestrator starts services in dependency order and stops them in reverse.
type Orchestrator struct {
	mu         sync.RWMutex
	services   map[string]ManagedService
	status     map[string]ServiceStatus
	startedAt  map[string]time.Time
	lastErrors map[string]error

	startTimeout time.Duration
	stopTimeout  time.Duration
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		services:     make(map[string]ManagedService),
		status:       make(map[string]ServiceStatus),
		startedAt:    make(map[string]time.Time),
		lastErrors:   make(map[string]error),
		startTimeout: 30 * time.Second,
		stopTimeout:  10 * time.Second,
	}
}

// WithTimeouts configures per-service start and stop timeouts.
func (o *Orchestrator) WithTimeouts(start, stop time.Duration) *Orchestrator {
	o.startTimeout = start
	o.stopTimeout = stop
	return o
}

// Register adds a service.
func (o *Orchestrator) Register(svc ManagedService) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := svc.Name()
	if name == "" {
		return errors.ValidationError("service name cannot be empty").Build()
	}
	if _, exists := o.services[name]; exists {
		return errors.ValidationError(fmt.Sprintf("service %s already registered", name)).Build()
	}
	o.services[name] = svc
	o.status[name] = StatusNotStarted
	return nil
}

// StartAll starts every service in dependency order. On failure the services
// already started are stopped again.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, err := o.startOrder()
	if err != nil {
		return errors.InternalError("failed to calculate service start order").WithCause(err).Build()
	}
	slog.Debug("Starting services", slog.Any("order", order))

	for i, name := range order {
		if err := o.startService(ctx, name); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := o.stopService(ctx, order[j]); stopErr != nil {
					slog.Error("Error stopping service during cleanup", slog.String("service", order[j]), logfields.Error(stopErr))
				}
			}
			return err
		}
	}
	return nil
}

// StopAll stops running services in reverse dependency order.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, err := o.startOrder()
	if err != nil {
		return errors.InternalError("failed to calculate service stop order").WithCause(err).Build()
	}
	var lastError error
	for i := len(order) - 1; i >= 0; i-- {
		if err := o.stopService(ctx, order[i]); err != nil {
			lastError = err
			slog.Error("Error stopping service", slog.String("service", order[i]), logfields.Error(err))
		}
	}
	if lastError != nil {
		return errors.InternalError("some services failed to stop gracefully").WithCause(lastError).Build()
	}
	return nil
}

// Info returns the state of every service sorted by name.
func (o *Orchestrator) Info() []ServiceInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()

	infos := make([]ServiceInfo, 0, len(o.services))
	for name, svc := range o.services {
		info := ServiceInfo{
			Name:         name,
			Status:       o.status[name],
			Dependencies: svc.Dependencies(),
			Health:       svc.Health(),
		}
		if t, ok := o.startedAt[name]; ok {
			info.StartedAt = &t
		}
		if err := o.lastErrors[name]; err != nil {
			info.LastError = err.Error()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// States maps service names to their status.
func (o *Orchestrator) States() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]string, len(o.status))
	for name, st := range o.status {
		out[name] = string(st)
	}
	return out
}

// startOrder topologically sorts services by dependency. Ties are broken by
// name so the order is deterministic.
func (o *Orchestrator) startOrder() ([]string, error) {
	names := make([]string, 0, len(o.services))
	for name := range o.services {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	var order []string

	var visit func(string) error
	visit = func(name string) error {
		if visiting[name] {
			return fmt.Errorf("circular dependency detected involving service: %s", name)
		}
		if visited[name] {
			return nil
		}
		svc, exists := o.services[name]
		if !exists {
			return fmt.Errorf("service not found: %s", name)
		}
		visiting[name] = true
		for _, dep := range svc.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (o *Orchestrator) startService(ctx context.Context, name string) error {
	svc := o.services[name]
	o.status[name] = StatusStarting

	timeoutCtx, cancel := context.WithTimeout(ctx, o.startTimeout)
	defer cancel()

	start := time.Now()
	if err := svc.Start(timeoutCtx); err != nil {
		o.status[name] = StatusFailed
		o.lastErrors[name] = err
		return errors.InternalError(fmt.Sprintf("failed to start service %s", name)).WithCause(err).Build()
	}
	o.status[name] = StatusRunning
	o.startedAt[name] = start
	o.lastErrors[name] = nil
	slog.Debug("Service started", slog.String("service", name), logfields.Duration(time.Since(start)))
	return nil
}

func (o *Orchestrator) stopService(ctx context.Context, name string) error {
	if o.status[name] != StatusRunning {
		return nil
	}
	svc := o.services[name]
	o.status[name] = StatusStopping

	timeoutCtx, cancel := context.WithTimeout(ctx, o.stopTimeout)
	defer cancel()

	if err := svc.Stop(timeoutCtx); err != nil {
		o.status[name] = StatusFailed
		o.lastErrors[name] = err
		return err
	}
	o.status[name] = StatusStopped
	slog.Debug("Service stopped", slog.String("service", name))
	return nil
}

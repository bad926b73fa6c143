package services

import (
	"context"
	"sync"
)

// FuncService adapts start/stop functions to ManagedService.
type FuncService struct {
	name  string
	deps  []string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error

	mu      sync.Mutex
	running bool
}

// NewFuncService creates a service from start and stop functions. Either may be nil.
func NewFuncService(name string, start, stop func(ctx context.Context) error, deps ...string) *FuncService {
	return &FuncService{name: name, start: start, stop: stop, deps: deps}
}

func (f *FuncService) Name() string           { return f.name }
func (f *FuncService) Dependencies() []string { return f.deps }

func (f *FuncService) Start(ctx context.Context) error {
	if f.start != nil {
		if err := f.start(ctx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return nil
}

func (f *FuncService) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	if f.stop != nil {
		return f.stop(ctx)
	}
	return nil
}

func (f *FuncService) Health() HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return HealthStatusHealthy()
	}
	return HealthStatusUnhealthy("not running")
}

// BackgroundService runs a blocking function until its context is canceled.
type BackgroundService struct {
	name string
	deps []string
	run  func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewBackgroundService wraps run, which must return when ctx is canceled.
func NewBackgroundService(name string, run func(ctx context.Context) error, deps ...string) *BackgroundService {
	return &BackgroundService{name: name, run: run, deps: deps}
}

func (b *BackgroundService) Name() string           { return b.name }
func (b *BackgroundService) Dependencies() []string { return b.deps }

// Start launches run detached from ctx, which only bounds startup.
func (b *BackgroundService) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancel
	b.done = make(chan struct{})
	b.err = nil
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		err := b.run(ctx)
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
	}()
	return nil
}

func (b *BackgroundService) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *BackgroundService) Health() HealthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		return HealthStatusUnhealthy("not started")
	}
	select {
	case <-b.done:
		if b.err != nil {
			return HealthStatusUnhealthy(b.err.Error())
		}
		return HealthStatusUnhealthy("stopped")
	default:
		return HealthStatusHealthy()
	}
}

package services

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures start and stop order across services.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func svc(r *recorder, name string, fail bool, deps ...string) *FuncService {
	return NewFuncService(name,
		func(context.Context) error {
			if fail {
				return stderrors.New("start failure")
			}
			r.add("start:" + name)
			return nil
		},
		func(context.Context) error {
			r.add("stop:" + name)
			return nil
		},
		deps...)
}

func TestOrchestrator_DependencyOrder(t *testing.T) {
	rec := &recorder{}
	o := NewOrchestrator()
	require.NoError(t, o.Register(svc(rec, "http", false, "store", "scheduler")))
	require.NoError(t, o.Register(svc(rec, "scheduler", false)))
	require.NoError(t, o.Register(svc(rec, "store", false)))

	require.NoError(t, o.StartAll(context.Background()))
	assert.Equal(t, []string{"start:scheduler", "start:store", "start:http"}, rec.events)
	assert.Equal(t, "running", o.States()["http"])

	rec.events = nil
	require.NoError(t, o.StopAll(context.Background()))
	assert.Equal(t, []string{"stop:http", "stop:store", "stop:scheduler"}, rec.events)
}

func TestOrchestrator_StartFailureStopsStarted(t *testing.T) {
	rec := &recorder{}
	o := NewOrchestrator()
	require.NoError(t, o.Register(svc(rec, "a", false)))
	require.NoError(t, o.Register(svc(rec, "b", true, "a")))

	err := o.StartAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"start:a", "stop:a"}, rec.events)

	infos := o.Info()
	require.Len(t, infos, 2)
	assert.Equal(t, StatusFailed, infos[1].Status)
	assert.NotEmpty(t, infos[1].LastError)
}

func TestOrchestrator_Registration(t *testing.T) {
	o := NewOrchestrator()
	require.NoError(t, o.Register(NewFuncService("x", nil, nil)))
	assert.Error(t, o.Register(NewFuncService("x", nil, nil)))
	assert.Error(t, o.Register(NewFuncService("", nil, nil)))
}

func TestOrchestrator_CircularDependency(t *testing.T) {
	o := NewOrchestrator()
	require.NoError(t, o.Register(NewFuncService("a", nil, nil, "b")))
	require.NoError(t, o.Register(NewFuncService("b", nil, nil, "a")))
	assert.Error(t, o.StartAll(context.Background()))
}

func TestBackgroundService(t *testing.T) {
	started := make(chan struct{})
	b := NewBackgroundService("watcher", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})
	assert.Equal(t, "unhealthy", b.Health().Status)

	require.NoError(t, b.Start(context.Background()))
	<-started
	assert.Equal(t, "healthy", b.Health().Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
	assert.Equal(t, "unhealthy", b.Health().Status)
}

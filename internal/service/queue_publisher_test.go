package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/scene-continuity/internal/queue"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestDispatcherDeliversEvents(t *testing.T) {
	rec := &recordingPublisher{}
	d := NewDispatcher(rec, time.Second, nil)
	d.Emit(queue.InheritanceCompletedEvent{SceneID: "s1", Created: 2})
	d.Emit(queue.StageTransitionEvent{SceneID: "s1", Stage: 7, Action: "lock"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
}

func TestDispatcherLogsFailures(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	d := NewDispatcher(&recordingPublisher{err: errors.New("broker down")}, time.Second, zap.New(core))
	d.Emit(queue.TransformationChangedEvent{TransformationID: "t1", Action: "created"})
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	entries := observed.FilterMessage("publish failed").All()
	if len(entries) != 1 || entries[0].ContextMap()["type"] != queue.TypeTransformationChanged {
		t.Fatalf("unexpected log entries %+v", observed.All())
	}
}

func TestNewAMQPPublisherDefaults(t *testing.T) {
	p := NewAMQPPublisher("", "")
	if p.url == "" || p.queue != queue.AuditQueueName {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewStepEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(StepFinished, func(ctx context.Context, event StepEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(StepFinished, func(ctx context.Context, event StepEvent) error {
		calledB = event.Step == "MATURITY_CHECK"
		return nil
	})

	if err := bus.Publish(context.Background(), StepEvent{Type: StepFinished, Step: "MATURITY_CHECK"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusRoutesByType(t *testing.T) {
	bus := NewStepEventBus()
	called := false
	bus.Subscribe(StepStarted, func(ctx context.Context, event StepEvent) error {
		called = true
		return nil
	})

	if err := bus.Publish(context.Background(), StepEvent{Type: StepFinished}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected StepStarted handler not to receive StepFinished")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewStepEventBus()
	called := false
	unsubscribe := bus.Subscribe(StepFinished, func(ctx context.Context, event StepEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), StepEvent{Type: StepFinished}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewStepEventBus()
	bus.Subscribe(StepFinished, func(ctx context.Context, event StepEvent) error {
		return errors.New("err-a")
	})
	bus.Subscribe(StepFinished, func(ctx context.Context, event StepEvent) error {
		return errors.New("err-b")
	})

	if err := bus.Publish(context.Background(), StepEvent{Type: StepFinished}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *StepEventBus
	if err := bus.Publish(context.Background(), StepEvent{Type: StepStarted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

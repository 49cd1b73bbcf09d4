package subscriber

import (
	"context"
	"errors"
	"testing"

	"github.com/dpo2u/lgpdkit/internal/eventbus"
	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStepStore struct {
	records []model.StepRecord
	err     error
}

func (m *mockStepStore) AddStep(step *model.StepRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *step)
	return nil
}

func TestStepEventSubscriberWritesFinishedSteps(t *testing.T) {
	store := &mockStepStore{}
	bus := eventbus.NewStepEventBus()
	NewStepEventSubscriber(store).Register(bus)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, eventbus.StepEvent{Type: eventbus.StepStarted, RunID: "r1", Step: "MATURITY_CHECK"}))
	require.NoError(t, bus.Publish(ctx, eventbus.StepEvent{Type: eventbus.StepFinished, RunID: "r1", Step: "MATURITY_CHECK", Success: true, File: "/out/maturidade.md"}))
	require.NoError(t, bus.Publish(ctx, eventbus.StepEvent{Type: eventbus.StepFinished, Step: "DATA_FLOW_MAPPING"}))

	require.Len(t, store.records, 1)
	assert.Equal(t, "r1", store.records[0].RunID)
	assert.Equal(t, "/out/maturidade.md", store.records[0].File)
	assert.True(t, store.records[0].Success)
}

func TestStepEventSubscriberPropagatesStoreError(t *testing.T) {
	store := &mockStepStore{err: errors.New("db down")}
	bus := eventbus.NewStepEventBus()
	unsubscribe := NewStepEventSubscriber(store).Register(bus)

	err := bus.Publish(context.Background(), eventbus.StepEvent{Type: eventbus.StepFinished, RunID: "r1", Step: "X"})
	assert.Error(t, err)

	unsubscribe()
	assert.NoError(t, bus.Publish(context.Background(), eventbus.StepEvent{Type: eventbus.StepFinished, RunID: "r1", Step: "X"}))
}

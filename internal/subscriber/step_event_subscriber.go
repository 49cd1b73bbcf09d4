package subscriber

import (
	"context"
	"fmt"

	"github.com/dpo2u/lgpdkit/internal/eventbus"
	"github.com/dpo2u/lgpdkit/internal/model"
	"k8s.io/klog/v2"
)

// StepEventSubscriber 把步骤完成事件写入运行历史
type StepEventSubscriber struct {
	store stepStore
}

type stepStore interface {
	AddStep(step *model.StepRecord) error
}

func NewStepEventSubscriber(store stepStore) *StepEventSubscriber {
	return &StepEventSubscriber{store: store}
}

// Register 订阅步骤完成事件，返回取消订阅函数
func (s *StepEventSubscriber) Register(bus *eventbus.StepEventBus) func() {
	if bus == nil {
		return func() {}
	}
	return bus.Subscribe(eventbus.StepFinished, s.handleStepFinished)
}

func (s *StepEventSubscriber) handleStepFinished(ctx context.Context, event eventbus.StepEvent) error {
	if event.RunID == "" {
		// CLI 直接运行时没有运行记录
		return nil
	}
	if event.Step == "" {
		return fmt.Errorf("步骤标识为空: runID=%s", event.RunID)
	}
	record := &model.StepRecord{
		RunID:    event.RunID,
		Step:     event.Step,
		Success:  event.Success,
		File:     event.File,
		ErrorMsg: event.Error,
	}
	if err := s.store.AddStep(record); err != nil {
		klog.Errorf("步骤事件处理失败: runID=%s, step=%s, error=%v", event.RunID, event.Step, err)
		return err
	}
	klog.V(6).Infof("步骤事件处理成功: runID=%s, step=%s, success=%v", event.RunID, event.Step, event.Success)
	return nil
}

package eventbus

type StepEventType string

const (
	StepStarted  StepEventType = "StepStarted"
	StepFinished StepEventType = "StepFinished"
)

// StepEvent 流水线单个步骤的进度事件
type StepEvent struct {
	Type    StepEventType
	RunID   string
	Step    string
	Label   string
	Index   int
	Total   int
	Success bool
	File    string
	Error   string
}

func (e StepEvent) EventType() StepEventType { return e.Type }

type StepEventHandler = Handler[StepEvent]
type StepEventBus = Bus[StepEventType, StepEvent]

func NewStepEventBus() *StepEventBus {
	return NewBus[StepEventType, StepEvent]()
}

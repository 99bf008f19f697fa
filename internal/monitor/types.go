package monitor

import (
	"time"

	"costsim/internal/sim"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventSimulationResult EventType = "simulation_result"
	EventOutcome          EventType = "outcome"
	EventError            EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ResultPayload 记录一次模拟输出。
type ResultPayload struct {
	Result sim.Result `json:"result"`
}

// OutcomePayload 记录一次真实成交回报。
type OutcomePayload struct {
	Outcome sim.Outcome `json:"outcome"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

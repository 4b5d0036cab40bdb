// Package events carries status events out of long-running stages: the
// worker pool and the pipeline orchestrator emit them, the dashboard and the
// JSONL/Kafka sinks consume them. Emission is fire-and-forget; a sink that
// cannot keep up or fails never blocks or aborts the producing stage.
package events

import "time"

// EventType enumerates the status event types.
type EventType string

const (
	// TaskStarted is emitted when a worker begins processing a claimed task.
	TaskStarted EventType = "task_started"

	// TaskCompleted is emitted when a task is acknowledged as completed.
	TaskCompleted EventType = "task_completed"

	// TaskFailed is emitted when a task is marked failed (it may still retry).
	TaskFailed EventType = "task_failed"

	// WorkerIdle is emitted when a worker finds no claimable work.
	WorkerIdle EventType = "worker_idle"

	// WorkerStopped is emitted when a worker exits its loop.
	WorkerStopped EventType = "worker_stopped"

	// StageStarted is emitted when a pipeline stage begins.
	StageStarted EventType = "stage_started"

	// StageFinished is emitted when a pipeline stage ends, whatever the outcome.
	StageFinished EventType = "stage_finished"
)

// Event is one status event. Only the fields relevant to the event type are
// set; the zero values marshal away under omitempty.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	WorkerID string `json:"worker_id,omitempty"`
	Tour     string `json:"tour,omitempty"`

	TaskID   int64  `json:"task_id,omitempty"`
	TaskType string `json:"task_type,omitempty"`

	RunID  string `json:"run_id,omitempty"`
	Stage  string `json:"stage,omitempty"`
	Status string `json:"status,omitempty"`

	Detail  string         `json:"detail,omitempty"`
	Metrics map[string]any `json:"metrics,omitempty"`
}

// Emitter is a status event sink.
type Emitter interface {
	// Emit delivers one event. Implementations must not block on slow
	// downstreams and must swallow delivery errors (logging them at most).
	Emit(event Event)

	// Close flushes and releases the sink.
	Close() error
}

// Nop is an Emitter that discards everything.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}

// Close implements Emitter.
func (Nop) Close() error { return nil }

// Multi fans one event out to several sinks.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, sink := range m {
		sink.Emit(event)
	}
}

// Close implements Emitter. Every sink is closed; the first error wins.
func (m Multi) Close() error {
	var first error

	for _, sink := range m {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Stamp fills the timestamp if the caller left it zero.
func Stamp(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	return event
}

// pkg/agent/models.go
package agent

import "time"

// TaskStatus represents where a task is in its lifecycle.
type TaskStatus string

const (
	StatusIdle       TaskStatus = "Idle"
	StatusCapturing  TaskStatus = "Capturing"
	StatusInferring  TaskStatus = "Inferring"
	StatusActing     TaskStatus = "Acting"
	StatusCompleted  TaskStatus = "Completed"
	StatusStepLimit  TaskStatus = "StepLimitReached"
	StatusFailed     TaskStatus = "Failed"
)

// IsTerminal reports whether the status ends the task.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStepLimit || s == StatusFailed
}

// MaxSteps is the fixed per-task step budget.
const MaxSteps = 10

// ToolMarker prefixes a tool call embedded in a model reply.
const ToolMarker = "[TOOL]"

// CompletionMarker in a model reply signals the goal is achieved. It takes
// precedence over any tool call in the same reply.
const CompletionMarker = "[DONE]"

// Task is one goal-driven run of the perception-act loop. Exactly one task
// may be active process-wide; Status and StepIndex are mutated only by the
// orchestrator's loop goroutine.
type Task struct {
	ID        string
	Goal      string
	Status    TaskStatus
	StepIndex int
	Started   time.Time
}

// ActionKind discriminates the Action variant.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionSwipe  ActionKind = "swipe"
	ActionScroll ActionKind = "scroll"
	ActionBack   ActionKind = "back"
	ActionHome   ActionKind = "home"
	ActionWait   ActionKind = "wait"
)

// ScrollDirection is the axis and sense of a scroll action.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// Action is one discrete step decided by the model. Click and Swipe
// coordinates are normalized: percentages of surface width/height in
// [0,100], resolution independent. Values outside that range are passed
// through and land off-surface; no clamping.
type Action struct {
	Kind ActionKind

	// Click: X,Y. Swipe: X,Y start, X2,Y2 end.
	X, Y   float64
	X2, Y2 float64
	// Swipe duration; zero means the dispatcher default.
	DurationMs int

	Direction ScrollDirection
}

// StepResult is the structured outcome of dispatching one action.
type StepResult struct {
	Action *Action
	// Err is empty on success. A non-empty Err does not abort the loop;
	// the step is consumed and the next one may recover.
	Err string
}

// OK reports whether the dispatch succeeded.
func (r StepResult) OK() bool { return r.Err == "" }

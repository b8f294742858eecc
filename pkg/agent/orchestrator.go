// pkg/agent/orchestrator.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options tunes the perception-act loop.
type Options struct {
	// CaptureTimeout bounds each screenshot of the surface.
	CaptureTimeout time.Duration
	// SettleDelay runs between a dispatch and the next capture so the
	// action can take visible effect.
	SettleDelay time.Duration
}

func (o *Options) applyDefaults() {
	if o.CaptureTimeout <= 0 {
		o.CaptureTimeout = 3 * time.Second
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
}

// Orchestrator drives the step loop for at most one task at a time and
// exposes its progress to observers. All collaborators are injected at
// construction; there is no process-wide service lookup.
type Orchestrator struct {
	logger     *zap.Logger
	capturer   Capturer
	gateway    InferenceGateway
	dispatcher *Dispatcher
	opts       Options

	// active is the one-task-at-a-time latch; StartTask does an atomic
	// check-and-set on it because it can race with itself.
	active atomic.Bool

	mu         sync.RWMutex
	task       *Task
	status     string
	processing bool
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(logger *zap.Logger, capturer Capturer, gateway InferenceGateway, dispatcher *Dispatcher, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		logger:     logger.Named("orchestrator"),
		capturer:   capturer,
		gateway:    gateway,
		dispatcher: dispatcher,
		opts:       opts,
		status:     string(StatusIdle),
	}
}

// StartTask begins a new task and returns immediately. The loop runs on its
// own goroutine bound to ctx; cancelling ctx tears the loop down. Returns
// false, changing nothing, if a task is already active.
func (o *Orchestrator) StartTask(ctx context.Context, goal string) bool {
	if !o.active.CompareAndSwap(false, true) {
		o.logger.Warn("Task rejected: another task is active", zap.String("goal", goal))
		return false
	}

	task := &Task{
		ID:      uuid.NewString(),
		Goal:    goal,
		Status:  StatusIdle,
		Started: time.Now().UTC(),
	}

	// A fresh task never inherits a prior conversation.
	o.gateway.Reset()

	o.mu.Lock()
	o.task = task
	o.status = "starting"
	o.processing = true
	o.mu.Unlock()

	o.logger.Info("Task started", zap.String("task_id", task.ID), zap.String("goal", goal))
	go o.runLoop(ctx, task)
	return true
}

// Status returns the current user-facing status line and whether a task is
// being processed. Written only by the loop, readable by any observer.
func (o *Orchestrator) Status() (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status, o.processing
}

// Snapshot returns a copy of the current (or most recent) task, or nil if
// none was ever started.
func (o *Orchestrator) Snapshot() *Task {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.task == nil {
		return nil
	}
	t := *o.task
	return &t
}

// runLoop is the single loop goroutine for one task. Each step is a strictly
// sequential capture, infer, act, settle sequence; step N+1 never begins
// before step N's dispatch completes.
func (o *Orchestrator) runLoop(ctx context.Context, task *Task) {
	// Teardown is admission-atomic: processing drops and the latch releases
	// inside one critical section. A successor admitted by the CAS can only
	// take the lock, and so publish its own state, after this task's final
	// write; and an observer that sees !processing is guaranteed the latch
	// is already free.
	defer func() {
		o.mu.Lock()
		o.processing = false
		o.active.Store(false)
		o.mu.Unlock()
	}()

	log := o.logger.With(zap.String("task_id", task.ID))

	for step := 0; step < MaxSteps; step++ {
		if ctx.Err() != nil {
			log.Info("Loop cancelled", zap.Int("step", step))
			return
		}
		o.setStep(task, step)

		// 1. Capture under a bounded deadline.
		o.setState(ctx, task, StatusCapturing, "capturing screen")
		capCtx, cancel := context.WithTimeout(ctx, o.opts.CaptureTimeout)
		frame, err := o.capturer.Capture(capCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(ctx, task, fmt.Sprintf("capture failed: %v", err))
			return
		}

		// 2. The goal is stated once; later steps get a continue prompt.
		prompt := task.Goal
		if step > 0 {
			prompt = continuePrompt
		}

		// 3. One exclusive inference exchange.
		o.setState(ctx, task, StatusInferring, "thinking")
		reply, err := o.gateway.Exchange(ctx, frame, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(ctx, task, fmt.Sprintf("inference failed: %v", err))
			return
		}

		// 4. The completion marker wins over any embedded tool call.
		if strings.Contains(reply, CompletionMarker) {
			o.finish(ctx, task, StatusCompleted, "completed")
			log.Info("Task completed", zap.Int("step", step))
			return
		}

		// 5. Parse and dispatch. A miss or a dispatch error consumes the
		// step without aborting; the next step may recover.
		if action, ok := ParseAction(reply); ok {
			o.setState(ctx, task, StatusActing, fmt.Sprintf("performing %s", action.Kind))
			res := o.dispatcher.Dispatch(ctx, action)
			if !res.OK() {
				log.Warn("Dispatch failed, continuing",
					zap.String("action", string(action.Kind)), zap.String("error", res.Err))
			}
		} else {
			log.Debug("No tool call in reply, step idles", zap.Int("step", step))
		}

		// 6. Let the action take visible effect before the next capture.
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.opts.SettleDelay):
		}
	}

	o.finish(ctx, task, StatusStepLimit, "step limit reached")
	log.Info("Task stopped at step budget", zap.Int("max_steps", MaxSteps))
}

// setState publishes a non-terminal state transition. Post-await mutations
// are guarded: once ctx is cancelled the loop must not touch shared state.
func (o *Orchestrator) setState(ctx context.Context, task *Task, status TaskStatus, line string) {
	if ctx.Err() != nil {
		return
	}
	o.mu.Lock()
	task.Status = status
	o.status = line
	o.mu.Unlock()
}

func (o *Orchestrator) setStep(task *Task, step int) {
	o.mu.Lock()
	task.StepIndex = step
	o.mu.Unlock()
}

func (o *Orchestrator) fail(ctx context.Context, task *Task, msg string) {
	o.finish(ctx, task, StatusFailed, msg)
	o.logger.Error("Task failed", zap.String("task_id", task.ID), zap.String("reason", msg))
}

func (o *Orchestrator) finish(ctx context.Context, task *Task, status TaskStatus, line string) {
	if ctx.Err() != nil {
		return
	}
	o.mu.Lock()
	task.Status = status
	o.status = line
	o.mu.Unlock()
}

// pkg/agent/orchestrator_test.go
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Mock Implementations for Testing

type mockCapturer struct {
	mu       sync.Mutex
	captures int
	err      error
	// failures makes the next N captures fail, then recover.
	failures int
}

func (m *mockCapturer) Capture(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("transient capture failure")
	}
	m.captures++
	return []byte("png-bytes"), nil
}

func (m *mockCapturer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// mockGateway replays scripted replies in order; the last one repeats.
type mockGateway struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
	resets  int
	// block, when non-nil, parks Exchange until the channel is closed.
	block chan struct{}
}

func (m *mockGateway) Exchange(ctx context.Context, frame []byte, prompt string) (string, error) {
	m.mu.Lock()
	block := m.block
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return "", err
	}
	m.prompts = append(m.prompts, prompt)
	i := len(m.prompts) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	var reply string
	if i >= 0 {
		reply = m.replies[i]
	}
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, nil
}

func (m *mockGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

// Fixture

type orchestratorFixture struct {
	orch     *Orchestrator
	capturer *mockCapturer
	gateway  *mockGateway
	caps     *mockCapabilities
}

func newOrchestratorFixture(replies ...string) *orchestratorFixture {
	capturer := &mockCapturer{}
	gateway := &mockGateway{replies: replies}
	caps := &mockCapabilities{ready: true}
	dispatcher := NewDispatcher(zap.NewNop(), caps, &mockMetrics{w: 1000, h: 1000}, nil)
	orch := NewOrchestrator(zap.NewNop(), capturer, gateway, dispatcher, Options{
		CaptureTimeout: time.Second,
		SettleDelay:    time.Millisecond,
	})
	return &orchestratorFixture{orch: orch, capturer: capturer, gateway: gateway, caps: caps}
}

// waitDone polls until no task is processing.
func (f *orchestratorFixture) waitDone(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, processing := f.orch.Status(); !processing {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
}

// Tests

func TestOpenSettingsScenario(t *testing.T) {
	// Step 0: the model taps the top-center gear. Step 1: it declares done.
	f := newOrchestratorFixture(
		"I can see the gear icon.\n[TOOL] click(50, 10)",
		"The settings screen is open. [DONE]",
	)

	require.True(t, f.orch.StartTask(context.Background(), "open settings"))
	f.waitDone(t)

	task := f.orch.Snapshot()
	require.NotNil(t, task)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 1, task.StepIndex)

	call := f.caps.lastCall(t)
	assert.Equal(t, "click", call.name)
	assert.Equal(t, 500, call.x)
	assert.Equal(t, 100, call.y)

	// The goal is stated only on step zero.
	assert.Equal(t, []string{"open settings", continuePrompt}, f.gateway.prompts)
	// No capture after the completion marker.
	assert.Equal(t, 2, f.capturer.count())
	// The conversation was reset for the fresh task.
	assert.Equal(t, 1, f.gateway.resets)
}

func TestCompletionMarkerWinsOverEmbeddedAction(t *testing.T) {
	f := newOrchestratorFixture("[TOOL] click(50, 50) ... actually [DONE]")

	require.True(t, f.orch.StartTask(context.Background(), "goal"))
	f.waitDone(t)

	assert.Equal(t, StatusCompleted, f.orch.Snapshot().Status)
	assert.Empty(t, f.caps.calls)
}

func TestStepLimitReached(t *testing.T) {
	// The model never concludes; the budget runs out.
	f := newOrchestratorFixture("[TOOL] wait()")

	require.True(t, f.orch.StartTask(context.Background(), "impossible goal"))
	f.waitDone(t)

	task := f.orch.Snapshot()
	assert.Equal(t, StatusStepLimit, task.Status)
	assert.Equal(t, MaxSteps-1, task.StepIndex)
	assert.Equal(t, MaxSteps, f.capturer.count())
}

func TestParseMissConsumesStep(t *testing.T) {
	f := newOrchestratorFixture("just rambling, no tool call here")

	require.True(t, f.orch.StartTask(context.Background(), "goal"))
	f.waitDone(t)

	// All steps idle away; the loop still terminates at the budget.
	assert.Equal(t, StatusStepLimit, f.orch.Snapshot().Status)
	assert.Empty(t, f.caps.calls)
	assert.Equal(t, MaxSteps, f.capturer.count())
}

func TestDispatchFailureDoesNotAbortLoop(t *testing.T) {
	f := newOrchestratorFixture(
		"[TOOL] click(10, 10)",
		"[DONE]",
	)
	f.caps.ready = false // every dispatch reports "service not connected"

	require.True(t, f.orch.StartTask(context.Background(), "goal"))
	f.waitDone(t)

	assert.Equal(t, StatusCompleted, f.orch.Snapshot().Status)
}

func TestCaptureFailureFailsTask(t *testing.T) {
	f := newOrchestratorFixture()
	f.capturer.err = errors.New("surface hidden")

	require.True(t, f.orch.StartTask(context.Background(), "goal"))
	f.waitDone(t)

	task := f.orch.Snapshot()
	assert.Equal(t, StatusFailed, task.Status)
	status, _ := f.orch.Status()
	assert.Contains(t, status, "capture failed")
}

func TestInferenceFailureFailsTask(t *testing.T) {
	f := newOrchestratorFixture()
	f.gateway.err = errors.New("backend exploded")

	require.True(t, f.orch.StartTask(context.Background(), "goal"))
	f.waitDone(t)

	assert.Equal(t, StatusFailed, f.orch.Snapshot().Status)
	status, _ := f.orch.Status()
	assert.Contains(t, status, "backend exploded")
}

func TestStartTaskRejectsWhileActive(t *testing.T) {
	f := newOrchestratorFixture("[TOOL] wait()")

	require.True(t, f.orch.StartTask(context.Background(), "first"))
	assert.False(t, f.orch.StartTask(context.Background(), "second"))
	f.waitDone(t)

	// Only the first task's conversation reset happened.
	assert.Equal(t, 1, f.gateway.resets)
	assert.Equal(t, "first", f.orch.Snapshot().Goal)
}

func TestConcurrentDoubleStartAdmitsExactlyOne(t *testing.T) {
	f := newOrchestratorFixture("[DONE]")

	const starters = 16
	var admitted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if f.orch.StartTask(context.Background(), "racing goal") {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	f.waitDone(t)
}

func TestTeardownDoesNotStompSuccessorTask(t *testing.T) {
	// A task admitted while the previous one is tearing down must keep its
	// processing flag: the dying loop's final write may not land after the
	// successor's. The first task fails on its only capture; the successor's
	// exchange is parked so it is observably in flight.
	for round := 0; round < 20; round++ {
		f := newOrchestratorFixture("[DONE]")
		f.capturer.failures = 1
		release := make(chan struct{})
		f.gateway.block = release

		require.True(t, f.orch.StartTask(context.Background(), "doomed"))

		// Hammer admission so it races the first task's teardown.
		deadline := time.Now().Add(5 * time.Second)
		for !f.orch.StartTask(context.Background(), "successor") {
			if time.Now().After(deadline) {
				t.Fatal("successor was never admitted")
			}
		}

		// The successor set processing on admission; it must stay visible
		// for as long as the successor runs.
		for i := 0; i < 50; i++ {
			_, processing := f.orch.Status()
			require.True(t, processing, "successor in flight but reported idle (round %d)", round)
			time.Sleep(100 * time.Microsecond)
		}

		close(release)
		f.waitDone(t)
		assert.Equal(t, StatusCompleted, f.orch.Snapshot().Status)
	}
}

func TestCancellationStopsLoop(t *testing.T) {
	f := newOrchestratorFixture("[TOOL] wait()")
	// A long settle delay keeps the loop parked where cancel can catch it.
	f.orch.opts.SettleDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, f.orch.StartTask(ctx, "goal"))

	// Let the first step reach the settle delay, then tear down.
	deadline := time.Now().Add(time.Second)
	for f.capturer.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	f.waitDone(t)

	// The loop stopped without reaching a terminal status on its own.
	task := f.orch.Snapshot()
	assert.False(t, task.Status.IsTerminal())

	// A fresh task is admitted once the cancelled loop has exited.
	f.orch.opts.SettleDelay = time.Millisecond
	f.gateway.replies = []string{"[DONE]"}
	require.True(t, f.orch.StartTask(context.Background(), "next"))
	f.waitDone(t)
}

func TestStepIndexIncreasesMonotonically(t *testing.T) {
	f := newOrchestratorFixture("[TOOL] wait()")

	require.True(t, f.orch.StartTask(context.Background(), "goal"))

	last := -1
	for {
		if task := f.orch.Snapshot(); task != nil {
			assert.GreaterOrEqual(t, task.StepIndex, last)
			last = task.StepIndex
		}
		if _, processing := f.orch.Status(); !processing {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Less(t, last, MaxSteps)
}

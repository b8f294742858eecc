// pkg/inference/gateway_test.go
package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Mock Implementations for Testing

type mockModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]*genai.Content

	// inFlight tracks concurrent Generate calls to detect overlap.
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	block       chan struct{} // when non-nil, Generate waits on it
}

func (m *mockModel) Generate(ctx context.Context, contents []*genai.Content) (string, error) {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		max := m.maxInFlight.Load()
		if cur <= max || m.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, contents)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

// Tests

func TestExchangeAccumulatesHistory(t *testing.T) {
	model := &mockModel{reply: "[TOOL] click(1, 2)"}
	g := NewGateway(zap.NewNop(), model, 0)

	reply, err := g.Exchange(context.Background(), []byte("frame-0"), "open settings")
	require.NoError(t, err)
	assert.Equal(t, "[TOOL] click(1, 2)", reply)
	assert.Equal(t, 2, g.HistoryLen()) // user turn + model turn

	_, err = g.Exchange(context.Background(), []byte("frame-1"), "continue")
	require.NoError(t, err)
	assert.Equal(t, 4, g.HistoryLen())

	// The second request carried the first exchange as context.
	model.mu.Lock()
	defer model.mu.Unlock()
	require.Len(t, model.requests, 2)
	assert.Len(t, model.requests[0], 1)
	assert.Len(t, model.requests[1], 3)
}

func TestExchangeErrorLeavesHistoryUntouched(t *testing.T) {
	model := &mockModel{err: errors.New("quota exceeded")}
	g := NewGateway(zap.NewNop(), model, 0)

	_, err := g.Exchange(context.Background(), []byte("frame"), "goal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Zero(t, g.HistoryLen())
}

func TestResetClearsConversation(t *testing.T) {
	model := &mockModel{reply: "ok"}
	g := NewGateway(zap.NewNop(), model, 0)

	_, err := g.Exchange(context.Background(), nil, "first task")
	require.NoError(t, err)
	require.NotZero(t, g.HistoryLen())

	g.Reset()
	assert.Zero(t, g.HistoryLen())

	_, err = g.Exchange(context.Background(), nil, "second task")
	require.NoError(t, err)

	// The post-reset request must not carry the first task's turns.
	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Len(t, model.requests[1], 1)
}

func TestAskDoesNotTouchConversation(t *testing.T) {
	model := &mockModel{reply: "an answer"}
	g := NewGateway(zap.NewNop(), model, 0)

	_, err := g.Exchange(context.Background(), nil, "task turn")
	require.NoError(t, err)
	before := g.HistoryLen()

	reply, err := g.Ask(context.Background(), []byte("frame"), "what is on screen?")
	require.NoError(t, err)
	assert.Equal(t, "an answer", reply)
	assert.Equal(t, before, g.HistoryLen())

	// The ad hoc request saw only its own turn.
	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Len(t, model.requests[1], 1)
}

func TestCallsNeverOverlap(t *testing.T) {
	model := &mockModel{reply: "ok", block: make(chan struct{})}
	g := NewGateway(zap.NewNop(), model, 0)

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = g.Exchange(context.Background(), nil, "loop turn")
			} else {
				_, err = g.Ask(context.Background(), nil, "side question")
			}
			assert.NoError(t, err)
		}(i)
	}

	// Release the calls one at a time.
	for i := 0; i < callers; i++ {
		model.block <- struct{}{}
	}
	wg.Wait()

	assert.Equal(t, int32(1), model.maxInFlight.Load(),
		"two inference calls executed simultaneously")
}

func TestQueuedCallerWaitsForFirstToComplete(t *testing.T) {
	model := &mockModel{reply: "ok", block: make(chan struct{})}
	g := NewGateway(zap.NewNop(), model, 0)

	firstDone := make(chan struct{})
	go func() {
		_, _ = g.Exchange(context.Background(), nil, "first")
		close(firstDone)
	}()

	// Give the first call time to take the slot, then queue a second.
	time.Sleep(20 * time.Millisecond)
	secondStarted := make(chan struct{})
	go func() {
		close(secondStarted)
		_, _ = g.Ask(context.Background(), nil, "second")
	}()

	<-secondStarted
	select {
	case <-firstDone:
		t.Fatal("first call finished before it was released")
	case <-time.After(50 * time.Millisecond):
		// Second caller is queued, first still holds the slot.
	}

	model.block <- struct{}{} // release first
	<-firstDone
	model.block <- struct{}{} // release second
}

func TestQueuedCallerHonorsContext(t *testing.T) {
	model := &mockModel{reply: "ok", block: make(chan struct{})}
	g := NewGateway(zap.NewNop(), model, 0)

	holdDone := make(chan struct{})
	go func() {
		_, _ = g.Exchange(context.Background(), nil, "holder")
		close(holdDone)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Exchange(ctx, nil, "queued")
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("queued caller did not give up on cancellation")
	}

	model.block <- struct{}{}
	<-holdDone
}

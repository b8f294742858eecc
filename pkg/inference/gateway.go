// pkg/inference/gateway.go
package inference

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ModelClient is the narrow surface the gateway needs from a concrete
// multimodal backend.
type ModelClient interface {
	// Generate submits the ordered content list and returns the fully
	// accumulated response text.
	Generate(ctx context.Context, contents []*genai.Content) (string, error)
}

// Gateway owns exclusive, serialized access to the inference backend and
// the conversation state of the current task. The backend resource is not
// safely reentrant, so at most one call is in flight process-wide; a second
// caller queues behind the first rather than being dropped.
type Gateway struct {
	logger  *zap.Logger
	client  ModelClient
	flight  *semaphore.Weighted
	limiter *rate.Limiter // nil disables call spacing

	// history is the append-only conversation of the current task.
	// Exchange bodies are serialized by flight; Reset can run concurrently
	// with a queued caller, hence the extra lock.
	mu      sync.Mutex
	history []*genai.Content
}

// NewGateway creates a Gateway. requestsPerMinute <= 0 disables the rate
// limiter.
func NewGateway(logger *zap.Logger, client ModelClient, requestsPerMinute int) *Gateway {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
	}
	return &Gateway{
		logger:  logger.Named("inference"),
		client:  client,
		flight:  semaphore.NewWeighted(1),
		limiter: limiter,
	}
}

// Exchange appends one user turn (frame plus prompt) to the conversation,
// submits it, records the model turn, and returns the reply text.
//
// No call timeout is imposed here; a hung backend stalls the caller until
// its ctx is cancelled. Callers that need a bound must carry it in ctx.
func (g *Gateway) Exchange(ctx context.Context, frame []byte, prompt string) (string, error) {
	if err := g.flight.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for inference slot: %w", err)
	}
	defer g.flight.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	user := userTurn(frame, prompt)
	g.mu.Lock()
	contents := make([]*genai.Content, 0, len(g.history)+1)
	contents = append(contents, g.history...)
	contents = append(contents, user)
	g.mu.Unlock()

	g.logger.Debug("Submitting exchange",
		zap.Int("turns", len(contents)), zap.Int("frame_bytes", len(frame)))

	text, err := g.client.Generate(ctx, contents)
	if err != nil {
		return "", fmt.Errorf("inference backend: %w", err)
	}

	g.mu.Lock()
	g.history = append(g.history, user,
		genai.NewContentFromText(text, genai.RoleModel))
	g.mu.Unlock()
	return text, nil
}

// Ask performs a one-shot exchange outside the running conversation. It
// queues behind any in-flight call exactly like Exchange but neither reads
// nor writes the conversation state.
func (g *Gateway) Ask(ctx context.Context, frame []byte, prompt string) (string, error) {
	if err := g.flight.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for inference slot: %w", err)
	}
	defer g.flight.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	text, err := g.client.Generate(ctx, []*genai.Content{userTurn(frame, prompt)})
	if err != nil {
		return "", fmt.Errorf("inference backend: %w", err)
	}
	return text, nil
}

// Reset discards the conversation. Called at the start of every task so
// prior tasks never leak context into a new one.
func (g *Gateway) Reset() {
	g.mu.Lock()
	g.history = nil
	g.mu.Unlock()
	g.logger.Debug("Conversation reset")
}

// HistoryLen reports the number of recorded conversation turns.
func (g *Gateway) HistoryLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.history)
}

func userTurn(frame []byte, prompt string) *genai.Content {
	var parts []*genai.Part
	if len(frame) > 0 {
		parts = append(parts, genai.NewPartFromBytes(frame, "image/png"))
	}
	parts = append(parts, genai.NewPartFromText(prompt))
	return genai.NewContentFromParts(parts, genai.RoleUser)
}

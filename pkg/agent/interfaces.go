// pkg/agent/interfaces.go
package agent

import "context"

// Capturer produces a single still frame of the controlled surface.
// The context carries the capture deadline; implementations must not
// block past it.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CapabilityService executes primitive actions against the surface.
// Coordinates here are already absolute pixels.
type CapabilityService interface {
	// Ready reports whether the service can currently accept actions.
	Ready() bool
	Click(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error
	Back(ctx context.Context) error
	Home(ctx context.Context) error
}

// SurfaceMetrics reports the current surface dimensions. Queried fresh per
// dispatch; the surface can resize between steps.
type SurfaceMetrics interface {
	SurfaceSize(ctx context.Context) (width, height int, err error)
}

// Visualizer is an optional fire-and-forget hook showing where actions
// land. Implementations must be safe to call from any goroutine and must
// never block the dispatch path.
type Visualizer interface {
	OnClick(x, y int)
	OnSwipe(x1, y1, x2, y2 int)
}

// InferenceGateway is the loop's view of the multimodal backend: submit a
// frame plus prompt against the running conversation, get back the
// accumulated reply text.
type InferenceGateway interface {
	Exchange(ctx context.Context, frame []byte, prompt string) (string, error)
	// Reset clears the conversation so prior tasks never leak context.
	Reset()
}

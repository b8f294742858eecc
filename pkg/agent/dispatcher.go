// pkg/agent/dispatcher.go
package agent

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// defaultSwipeDurationMs applies when a swipe carries no duration.
const defaultSwipeDurationMs = 300

// Dispatcher converts normalized actions into absolute capability calls.
type Dispatcher struct {
	logger  *zap.Logger
	caps    CapabilityService
	metrics SurfaceMetrics
	viz     Visualizer // optional
}

// NewDispatcher creates a Dispatcher. viz may be nil.
func NewDispatcher(logger *zap.Logger, caps CapabilityService, metrics SurfaceMetrics, viz Visualizer) *Dispatcher {
	return &Dispatcher{
		logger:  logger.Named("dispatcher"),
		caps:    caps,
		metrics: metrics,
		viz:     viz,
	}
}

// Dispatch executes one action. It never panics and never returns an error
// out of band: failures are reported inside the StepResult so the caller's
// loop can continue.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action) StepResult {
	if !d.caps.Ready() {
		return StepResult{Action: &action, Err: "service not connected"}
	}

	switch action.Kind {
	case ActionWait:
		return StepResult{Action: &action}

	case ActionBack:
		return d.result(action, d.caps.Back(ctx))

	case ActionHome:
		return d.result(action, d.caps.Home(ctx))

	case ActionClick:
		w, h, err := d.metrics.SurfaceSize(ctx)
		if err != nil {
			return StepResult{Action: &action, Err: fmt.Sprintf("surface size: %v", err)}
		}
		x, y := toAbsolute(action.X, action.Y, w, h)
		if d.viz != nil {
			go d.viz.OnClick(x, y)
		}
		d.logger.Debug("Dispatching click",
			zap.Float64("norm_x", action.X), zap.Float64("norm_y", action.Y),
			zap.Int("abs_x", x), zap.Int("abs_y", y))
		return d.result(action, d.caps.Click(ctx, x, y))

	case ActionSwipe:
		return d.dispatchSwipe(ctx, action)

	case ActionScroll:
		swipe, ok := scrollToSwipe(action.Direction)
		if !ok {
			return StepResult{Action: &action, Err: fmt.Sprintf("unknown scroll direction %q", action.Direction)}
		}
		res := d.dispatchSwipe(ctx, swipe)
		// Report the scroll the model asked for, not the lowered swipe.
		res.Action = &action
		return res
	}

	return StepResult{Action: &action, Err: fmt.Sprintf("unknown action kind %q", action.Kind)}
}

func (d *Dispatcher) dispatchSwipe(ctx context.Context, action Action) StepResult {
	w, h, err := d.metrics.SurfaceSize(ctx)
	if err != nil {
		return StepResult{Action: &action, Err: fmt.Sprintf("surface size: %v", err)}
	}
	x1, y1 := toAbsolute(action.X, action.Y, w, h)
	x2, y2 := toAbsolute(action.X2, action.Y2, w, h)
	dur := action.DurationMs
	if dur <= 0 {
		dur = defaultSwipeDurationMs
	}
	if d.viz != nil {
		go d.viz.OnSwipe(x1, y1, x2, y2)
	}
	d.logger.Debug("Dispatching swipe",
		zap.Int("x1", x1), zap.Int("y1", y1),
		zap.Int("x2", x2), zap.Int("y2", y2), zap.Int("duration_ms", dur))
	return d.result(action, d.caps.Swipe(ctx, x1, y1, x2, y2, dur))
}

func (d *Dispatcher) result(action Action, err error) StepResult {
	if err != nil {
		return StepResult{Action: &action, Err: err.Error()}
	}
	return StepResult{Action: &action}
}

// toAbsolute linearly maps normalized [0,100] coordinates onto a surface of
// the given pixel dimensions. Out-of-range input maps off-surface.
func toAbsolute(normX, normY float64, width, height int) (int, int) {
	return int(math.Round(normX / 100 * float64(width))),
		int(math.Round(normY / 100 * float64(height)))
}

// scrollToSwipe lowers a scroll direction to a swipe spanning 80% to 20% of
// the relevant axis, centered on the other one.
func scrollToSwipe(dir ScrollDirection) (Action, bool) {
	swipe := Action{Kind: ActionSwipe, DurationMs: defaultSwipeDurationMs}
	switch dir {
	case ScrollUp:
		swipe.X, swipe.Y, swipe.X2, swipe.Y2 = 50, 80, 50, 20
	case ScrollDown:
		swipe.X, swipe.Y, swipe.X2, swipe.Y2 = 50, 20, 50, 80
	case ScrollLeft:
		swipe.X, swipe.Y, swipe.X2, swipe.Y2 = 80, 50, 20, 50
	case ScrollRight:
		swipe.X, swipe.Y, swipe.X2, swipe.Y2 = 20, 50, 80, 50
	default:
		return Action{}, false
	}
	return swipe, true
}

// pkg/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Session is one browser tab acting as the controlled surface. It provides
// the capture and input primitives the agent loop needs: a still frame on
// demand, tap/swipe/back/home, and the current surface dimensions.
type Session struct {
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	homeURL string

	mu     sync.Mutex
	closed bool
}

// Capture takes a PNG screenshot of the tab. The run follows the caller's
// ctx: its deadline bounds the capture and its cancellation aborts it.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.runCtx(ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// runCtx derives the context for one CDP run. chromedp needs the tab's
// context to resolve the target, so the run is a child of s.ctx with the
// caller's cancellation and deadline relayed onto it.
func (s *Session) runCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Ready reports whether the tab can currently accept actions.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.ctx.Err() == nil
}

// SurfaceSize returns the current CSS visual viewport dimensions. Queried
// fresh per dispatch since the surface can resize between steps.
func (s *Session) SurfaceSize(ctx context.Context) (int, int, error) {
	runCtx, cancel := s.runCtx(ctx)
	defer cancel()

	var width, height int
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		width = int(cssVisualViewport.ClientWidth)
		height = int(cssVisualViewport.ClientHeight)
		return nil
	}))
	if err != nil {
		return 0, 0, fmt.Errorf("layout metrics: %w", err)
	}
	return width, height, nil
}

// Click taps the surface at absolute pixel coordinates.
func (s *Session) Click(ctx context.Context, x, y int) error {
	runCtx, cancel := s.runCtx(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.MouseClickXY(float64(x), float64(y))); err != nil {
		return fmt.Errorf("click at (%d,%d): %w", x, y, err)
	}
	return nil
}

// Swipe drags from one point to another over the given duration: press,
// interpolated moves, release.
func (s *Session) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	path := swipePath(float64(x1), float64(y1), float64(x2), float64(y2), swipeSteps(durationMs))
	stepDelay := time.Duration(durationMs) * time.Millisecond / time.Duration(len(path))

	runCtx, cancel := s.runCtx(ctx)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.MouseEvent(input.MousePressed, float64(x1), float64(y1),
			chromedp.Button("left")).Do(ctx); err != nil {
			return err
		}
		for _, p := range path {
			if err := chromedp.MouseEvent(input.MouseMoved, p.x, p.y).Do(ctx); err != nil {
				return err
			}
			if err := chromedp.Sleep(stepDelay).Do(ctx); err != nil {
				return err
			}
		}
		return chromedp.MouseEvent(input.MouseReleased, float64(x2), float64(y2),
			chromedp.Button("left")).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("swipe (%d,%d)->(%d,%d): %w", x1, y1, x2, y2, err)
	}
	return nil
}

// Back navigates one entry back in the tab's history.
func (s *Session) Back(ctx context.Context) error {
	runCtx, cancel := s.runCtx(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// Home returns the tab to the configured home URL.
func (s *Session) Home(ctx context.Context) error {
	runCtx, cancel := s.runCtx(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(s.homeURL)); err != nil {
		return fmt.Errorf("navigate home: %w", err)
	}
	return nil
}

// Navigate points the tab at the given URL and waits for the load to start.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.runCtx(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Close tears down the tab. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

type point struct{ x, y float64 }

// swipeSteps picks the number of interpolated move events for a swipe,
// roughly one per frame at 60Hz.
func swipeSteps(durationMs int) int {
	steps := durationMs / 16
	if steps < 2 {
		steps = 2
	}
	if steps > 64 {
		steps = 64
	}
	return steps
}

// swipePath linearly interpolates the intermediate points of a swipe,
// excluding the start (the press) and including the end.
func swipePath(x1, y1, x2, y2 float64, steps int) []point {
	path := make([]point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		path = append(path, point{
			x: x1 + (x2-x1)*t,
			y: y1 + (y2-y1)*t,
		})
	}
	return path
}

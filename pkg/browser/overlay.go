// pkg/browser/overlay.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// overlayTimeout bounds a single overlay injection; the hook is
// fire-and-forget and must never hold up a dispatch.
const overlayTimeout = 2 * time.Second

// Overlay draws a transient in-page marker where an action lands. It
// implements the dispatcher's visualization hook; failures are logged and
// swallowed.
type Overlay struct {
	logger *zap.Logger
	sess   *Session
}

// NewOverlay creates an overlay bound to the session's tab.
func NewOverlay(logger *zap.Logger, sess *Session) *Overlay {
	return &Overlay{logger: logger.Named("overlay"), sess: sess}
}

// OnClick drops a fading ring at the click point.
func (o *Overlay) OnClick(x, y int) {
	o.inject(fmt.Sprintf(clickMarkerJS, x, y))
}

// OnSwipe marks the start and end of the swipe.
func (o *Overlay) OnSwipe(x1, y1, x2, y2 int) {
	o.inject(fmt.Sprintf(clickMarkerJS, x1, y1) + fmt.Sprintf(clickMarkerJS, x2, y2))
}

func (o *Overlay) inject(js string) {
	if !o.sess.Ready() {
		return
	}
	ctx, cancel := context.WithTimeout(o.sess.ctx, overlayTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.Evaluate(js+"; undefined;", nil)); err != nil {
		o.logger.Debug("Overlay injection failed", zap.Error(err))
	}
}

// clickMarkerJS drops an absolutely positioned ring that removes itself
// well before the loop's settle delay expires, keeping the next capture
// clean.
const clickMarkerJS = `(() => {
  const m = document.createElement('div');
  m.style.cssText = 'position:fixed;left:%dpx;top:%dpx;width:24px;height:24px;' +
    'margin:-12px 0 0 -12px;border:3px solid #e33;border-radius:50%%;' +
    'pointer-events:none;z-index:2147483647;opacity:0.9;transition:opacity 0.3s;';
  document.body.appendChild(m);
  setTimeout(() => { m.style.opacity = '0'; }, 150);
  setTimeout(() => { m.remove(); }, 450);
})();`

// LogVisualizer is the headless fallback for the visualization hook: it
// just records where actions landed.
type LogVisualizer struct {
	logger *zap.Logger
}

// NewLogVisualizer creates a logging visualizer.
func NewLogVisualizer(logger *zap.Logger) *LogVisualizer {
	return &LogVisualizer{logger: logger.Named("viz")}
}

func (v *LogVisualizer) OnClick(x, y int) {
	v.logger.Info("Action landed", zap.String("kind", "click"), zap.Int("x", x), zap.Int("y", y))
}

func (v *LogVisualizer) OnSwipe(x1, y1, x2, y2 int) {
	v.logger.Info("Action landed", zap.String("kind", "swipe"),
		zap.Int("x1", x1), zap.Int("y1", y1), zap.Int("x2", x2), zap.Int("y2", y2))
}

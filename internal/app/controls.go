package app

import (
	"errors"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/engine/viewer"
	"github.com/Faultbox/surfelview/internal/engine/window"
)

// Pointer travel in pixels below which a left press and release is a click.
const clickSlop = 4

// Focus radius change per key press, as a fraction of the dataset diagonal.
const focusStep = 0.05

// Controls maps input events onto the viewer context.
type Controls struct {
	viewer *viewer.Context
	log    *zap.Logger

	pressX, pressY int
	travel         int
	screenshot     bool
}

// NewControls creates the input mapping for v.
func NewControls(v *viewer.Context, log *zap.Logger) *Controls {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controls{viewer: v, log: log}
}

// Handle applies one event. It returns false when the viewer should quit.
func (c *Controls) Handle(e window.Event) bool {
	v := c.viewer
	switch e.Type {
	case window.EventQuit:
		return false

	case window.EventResize:
		v.Resize(e.Width, e.Height)

	case window.EventKeyDown:
		return c.key(e)

	case window.EventMouseDown:
		c.setButton(e.Button, true)
		v.Mouse.X, v.Mouse.Y = e.X, e.Y
		if e.Button == window.ButtonLeft {
			c.pressX, c.pressY, c.travel = e.X, e.Y, 0
		}

	case window.EventMouseUp:
		c.setButton(e.Button, false)
		if e.Button == window.ButtonLeft && c.travel < clickSlop {
			c.click(e.X, e.Y)
		}

	case window.EventMouseMove:
		v.Mouse.X, v.Mouse.Y = e.X, e.Y
		if v.Mouse.Left {
			c.travel += abs(e.DX) + abs(e.DY)
			v.Camera.HandleDrag(float32(e.DX), float32(e.DY))
		} else if v.Mouse.Right || v.Mouse.Middle {
			v.Camera.HandlePan(float32(e.DX), float32(e.DY))
		}

	case window.EventWheel:
		v.Camera.HandleZoom(e.Wheel)
	}
	return true
}

func (c *Controls) key(e window.Event) bool {
	v := c.viewer
	switch e.Key {
	case sdl.K_ESCAPE:
		return false
	case sdl.K_PLUS, sdl.K_KP_PLUS, sdl.K_EQUALS:
		v.AdjustTargetResolution(2)
	case sdl.K_MINUS, sdl.K_KP_MINUS:
		v.AdjustTargetResolution(0.5)
	case sdl.K_RIGHTBRACKET:
		v.AdjustFocusRadius(focusStep)
	case sdl.K_LEFTBRACKET:
		v.AdjustFocusRadius(-focusStep)
	case sdl.K_PERIOD:
		v.Settings.Subsampling++
	case sdl.K_COMMA:
		if v.Settings.Subsampling > 1 {
			v.Settings.Subsampling--
		}
	case sdl.K_b:
		v.Settings.ShowBounds = !v.Settings.ShowBounds
	case sdl.K_f:
		v.FitCamera()
	case sdl.K_c:
		v.ClearSelection()
	case sdl.K_p:
		c.screenshot = true
	}
	return true
}

// ScreenshotRequested reports whether a screenshot was asked for since the
// last call.
func (c *Controls) ScreenshotRequested() bool {
	req := c.screenshot
	c.screenshot = false
	return req
}

func (c *Controls) click(x, y int) {
	err := c.viewer.SelectAt(x, y)
	switch {
	case errors.Is(err, viewer.ErrNothingPicked):
		c.viewer.ClearSelection()
	case err != nil:
		c.log.Warn("selection failed", zap.Int("x", x), zap.Int("y", y), zap.Error(err))
	}
}

func (c *Controls) setButton(button uint8, down bool) {
	m := &c.viewer.Mouse
	switch button {
	case window.ButtonLeft:
		m.Left = down
	case window.ButtonRight:
		m.Right = down
	case window.ButtonMiddle:
		m.Middle = down
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package window

import "github.com/veandco/go-sdl2/sdl"

// EventType identifies an input event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventResize
	EventKeyDown
	EventMouseMove
	EventMouseDown
	EventMouseUp
	EventWheel
)

// Mouse buttons.
const (
	ButtonLeft   = sdl.BUTTON_LEFT
	ButtonMiddle = sdl.BUTTON_MIDDLE
	ButtonRight  = sdl.BUTTON_RIGHT
)

// Event is a processed input event.
type Event struct {
	Type   EventType
	Key    sdl.Keycode
	Shift  bool
	Width  int
	Height int
	X, Y   int
	DX, DY int     // Motion since the previous mouse event
	Wheel  float32 // Positive away from the user
	Button uint8
}

// translate converts an SDL event. Events the viewer does not use are
// dropped.
func translate(event sdl.Event) (Event, bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return Event{Type: EventQuit}, true

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED || e.Event == sdl.WINDOWEVENT_RESIZED {
			return Event{Type: EventResize, Width: int(e.Data1), Height: int(e.Data2)}, true
		}

	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN {
			return Event{
				Type:  EventKeyDown,
				Key:   e.Keysym.Sym,
				Shift: e.Keysym.Mod&sdl.KMOD_SHIFT != 0,
			}, true
		}

	case *sdl.MouseMotionEvent:
		return Event{
			Type: EventMouseMove,
			X:    int(e.X),
			Y:    int(e.Y),
			DX:   int(e.XRel),
			DY:   int(e.YRel),
		}, true

	case *sdl.MouseButtonEvent:
		typ := EventMouseUp
		if e.Type == sdl.MOUSEBUTTONDOWN {
			typ = EventMouseDown
		}
		return Event{Type: typ, X: int(e.X), Y: int(e.Y), Button: e.Button}, true

	case *sdl.MouseWheelEvent:
		wheel := float32(e.Y)
		if e.Direction == sdl.MOUSEWHEEL_FLIPPED {
			wheel = -wheel
		}
		return Event{Type: EventWheel, Wheel: wheel}, true
	}
	return Event{}, false
}

package events

// Kind discriminates the variants of Event.
type Kind string

const (
	KindKeyPress     Kind = "key_press"
	KindMouse        Kind = "mouse"
	KindScreenResize Kind = "screen_resize"
	KindMessage      Kind = "message"
	KindFocus        Kind = "focus"
	KindUnfocus      Kind = "unfocus"
)

// KeyPress describes a single key press.
type KeyPress struct {
	Char     string // printable character, empty for non-printable keys
	Code     string // logical key name, e.g. "Enter", "F1", "ArrowUp"
	Modifier string // "none", "shift", "ctrl", "alt", "super"
}

// MouseEvent describes a single mouse action.
type MouseEvent struct {
	Type string // "down", "up", "drag", "scroll_up", "scroll_down"
	X, Y uint32
}

// Message is an inter-component message, routed by sender and tag.
type Message struct {
	Sender string
	Tag    string
	Body   []byte
}

// ScreenResize reports the terminal's new dimensions.
type ScreenResize struct {
	X, Y uint32
}

// Event is the broker's single event envelope. Exactly one of the
// payload fields is populated, selected by Kind.
type Event struct {
	Kind    Kind
	Key     *KeyPress
	Mouse   *MouseEvent
	Message *Message
	Resize  *ScreenResize
}

// Channels returns the ordered list of channels this event matches.
// Order matters only for first-channel-match bookkeeping; actual
// delivery order is driven by subscriber priority (pkg/subscribe), not
// by this order.
func (e Event) Channels() []Channel {
	switch e.Kind {
	case KindKeyPress:
		return []Channel{
			Coarse(Everything),
			Coarse(AllKeyPresses),
			Fine(SpecificKeyPress, e.Key.Char),
			Fine(SpecificKeyCode, e.Key.Code),
			Fine(SpecificKeyModifier, e.Key.Modifier),
		}
	case KindMouse:
		return []Channel{
			Coarse(Everything),
			Coarse(AllMouseEvents),
			Fine(SpecificMouseEvent, e.Mouse.Type),
		}
	case KindScreenResize:
		return []Channel{
			Coarse(Everything),
			Coarse(ScreenResize),
		}
	case KindMessage:
		return []Channel{
			Coarse(Everything),
			Coarse(AllMessages),
			Fine(SpecificMessage, e.Message.Sender),
			Fine(SpecificMessageTag, e.Message.Tag),
		}
	case KindFocus:
		return []Channel{
			Coarse(Everything),
			Coarse(Focused),
		}
	case KindUnfocus:
		return []Channel{
			Coarse(Everything),
			Coarse(Unfocused),
		}
	default:
		return nil
	}
}

// PropagatesToDescendants reports whether an event of this kind may
// continue into descendant spaces after being visited at this level.
// Focus/Unfocus events never propagate regardless of capture result.
func (e Event) PropagatesToDescendants() bool {
	return e.Kind != KindFocus && e.Kind != KindUnfocus
}

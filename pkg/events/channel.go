package events

// ChannelKind names a class of subscription channel. Coarse kinds match
// every event of a class; fine kinds match only events carrying a
// specific key.
type ChannelKind string

const (
	Everything      ChannelKind = "everything"
	AllKeyPresses   ChannelKind = "all_key_presses"
	AllMouseEvents  ChannelKind = "all_mouse_events"
	AllMessages     ChannelKind = "all_messages"
	ScreenResize    ChannelKind = "screen_resize"
	Focused         ChannelKind = "focused"
	Unfocused       ChannelKind = "unfocused"

	SpecificKeyPress     ChannelKind = "specific_key_press"
	SpecificKeyCode      ChannelKind = "specific_key_code"
	SpecificKeyModifier  ChannelKind = "specific_key_modifier"
	SpecificMouseEvent   ChannelKind = "specific_mouse_event"
	SpecificMessage      ChannelKind = "specific_message"
	SpecificMessageTag   ChannelKind = "specific_message_tag"
)

// Channel is a subscription selector: a ChannelKind plus, for the fine
// selectors, the key it narrows on (a key press string, a key code, a
// modifier name, a mouse event type, a message sender, or a message
// tag). Channel is comparable and is used directly as a map key by
// pkg/subscribe.
type Channel struct {
	Kind ChannelKind
	Key  string
}

// Coarse builds a channel for one of the kinds with no key.
func Coarse(kind ChannelKind) Channel {
	return Channel{Kind: kind}
}

// Fine builds a channel for one of the keyed kinds.
func Fine(kind ChannelKind, key string) Channel {
	return Channel{Kind: kind, Key: key}
}

func (c Channel) String() string {
	if c.Key == "" {
		return string(c.Kind)
	}
	return string(c.Kind) + ":" + c.Key
}

// ParseChannel parses a channel selector string in String's format
// ("kind" or "kind:key") back into a Channel, as used by the wire
// protocol's Subscribe/Suppress request bodies.
func ParseChannel(s string) Channel {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return Fine(ChannelKind(s[:i]), s[i+1:])
		}
	}
	return Coarse(ChannelKind(s))
}

package core

import (
	"fmt"
	"time"
)

// EventType tags what happened. It doubles as the reason carried by a
// semaphore Post, so a waiter can learn why it woke up.
type EventType int

const (
	UnknownEvent EventType = iota

	// Timeout is returned by timed waits that expired and is delivered to
	// tasks whose sleep duration elapsed with no other event.
	Timeout

	// SemaphorePost is the default Post reason.
	SemaphorePost

	// ChannelMessage marks a Post produced by Channel.Write.
	ChannelMessage

	QuitEvent
	KeyDownEvent
	KeyUpEvent
	ResolutionChange
)

func (t EventType) String() string {
	switch t {
	case UnknownEvent:
		return "unknown"
	case Timeout:
		return "timeout"
	case SemaphorePost:
		return "semaphore_post"
	case ChannelMessage:
		return "channel_message"
	case QuitEvent:
		return "quit"
	case KeyDownEvent:
		return "key_down"
	case KeyUpEvent:
		return "key_up"
	case ResolutionChange:
		return "resolution_change"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Key identifies a key for KeyDownEvent and KeyUpEvent.
type Key int

const (
	KeyUnknown Key = iota
	KeyEscape
	KeyQ
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeySpace
	KeyEnter
)

var keyNames = [...]string{
	KeyUnknown: "unknown",
	KeyEscape:  "escape",
	KeyQ:       "q",
	KeyUp:      "up",
	KeyDown:    "down",
	KeyLeft:    "left",
	KeyRight:   "right",
	KeySpace:   "space",
	KeyEnter:   "enter",
}

func (k Key) String() string {
	if k < 0 || int(k) >= len(keyNames) {
		return fmt.Sprintf("key(%d)", int(k))
	}
	return keyNames[k]
}

// ParseKey maps a key name as printed by Key.String back to a Key.
func ParseKey(name string) (Key, bool) {
	for k, n := range keyNames {
		if n == name {
			return Key(k), true
		}
	}
	return KeyUnknown, false
}

// Event is an immutable description of something that happened.
// It is cheap to copy and safe to share between tasks.
type Event struct {
	typ     EventType
	key     Key
	payload any
}

func NewEvent(t EventType) Event {
	return Event{typ: t}
}

func NewKeyEvent(t EventType, k Key) Event {
	return Event{typ: t, key: k}
}

func NewPayloadEvent(t EventType, payload any) Event {
	return Event{typ: t, payload: payload}
}

func (e Event) Type() EventType { return e.typ }
func (e Event) Key() Key        { return e.key }
func (e Event) Payload() any    { return e.payload }

// EventSource is a pull-based supplier of events. Poll returns the next
// pending event, waiting at most timeout; a zero timeout never blocks.
type EventSource interface {
	Poll(timeout time.Duration) (Event, bool)
}

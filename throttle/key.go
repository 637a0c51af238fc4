package throttle

import (
	"fmt"
	"sort"
)

type keyKind uint8

const (
	kindGlobal keyKind = iota
	kindEditPerSecond
	kindEditPerHour
	kindPerChat
)

// Key identifies a rate-limited resource. Keys are comparable and usable as
// map keys. Per-chat keys are created on demand via PerChat; the remaining
// keys are package-level values.
type Key struct {
	kind keyKind
	chat string
}

var (
	// Global paces every request regardless of target.
	Global = Key{kind: kindGlobal}

	// EditPerSecond caps message edits over a one-second window.
	EditPerSecond = Key{kind: kindEditPerSecond}

	// EditPerHour caps message edits over a one-hour window.
	EditPerHour = Key{kind: kindEditPerHour}
)

// PerChat returns the spacing key for a single chat. Distinct chat IDs get
// independent windows, so throttling one chat never delays another.
func PerChat(chatID string) Key {
	return Key{kind: kindPerChat, chat: chatID}
}

func (k Key) String() string {
	switch k.kind {
	case kindGlobal:
		return "global"
	case kindEditPerSecond:
		return "edit_per_second"
	case kindEditPerHour:
		return "edit_per_hour"
	default:
		return fmt.Sprintf("chat:%s", k.chat)
	}
}

// SortKeys returns the keys in the fixed acquisition order:
// Global, EditPerSecond, EditPerHour, then PerChat keys by chat ID.
// Operations clearing more than one key always acquire them in this order
// so concurrent callers never interleave partial waits inconsistently.
func SortKeys(keys []Key) []Key {
	out := append([]Key(nil), keys...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].kind != out[j].kind {
			return out[i].kind < out[j].kind
		}
		return out[i].chat < out[j].chat
	})
	return out
}

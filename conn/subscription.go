package conn

type eventKind int

const (
	eventCompleted eventKind = iota
	eventDestroyed
)

// Subscription is a registration for a one-shot connection event. Cancel
// releases it; cancelling twice or after the event fired is a no-op.
type Subscription struct {
	c    *Connection
	kind eventKind
	id   uint64
}

func (s *Subscription) Cancel() {
	if s == nil || s.c == nil {
		return
	}
	s.c.unsubscribe(s.kind, s.id)
	s.c = nil
}

type listener struct {
	id uint64
	fn func(*Connection)
}

// listeners keeps registrations in the order they were made.
type listeners []listener

func (ls listeners) without(id uint64) listeners {
	for i, l := range ls {
		if l.id == id {
			return append(ls[:i:i], ls[i+1:]...)
		}
	}
	return ls
}

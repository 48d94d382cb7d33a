package ws

import (
	"encoding/json"
)

// SendTo delivers msg to a single connection. Failures are logged and
// counted, never returned: a dead transport is reaped by its own receive loop.
func (r *Registry) SendTo(t Transport, msg any) {
	b, err := encode(msg)
	if err != nil {
		r.log.Error("ws.encode", "err", err)
		return
	}
	r.deliver(t, b)
}

// Broadcast delivers msg to every member of roomID except exclude (nil for
// everyone). The member list is snapshotted under the lock and sends happen
// after it is released; a member joining or leaving meanwhile may or may
// not get this message.
func (r *Registry) Broadcast(roomID string, msg any, exclude Transport) {
	r.mu.Lock()
	rm := r.rooms[roomID]
	if rm == nil {
		r.mu.Unlock()
		return
	}
	ts := rm.transports(exclude)
	r.mu.Unlock()

	r.sendAll(ts, msg)
}

func (r *Registry) sendAll(ts []Transport, msg any) {
	if len(ts) == 0 {
		return
	}
	b, err := encode(msg)
	if err != nil {
		r.log.Error("ws.encode", "err", err)
		return
	}
	for _, t := range ts {
		r.deliver(t, b)
	}
}

func (r *Registry) deliver(t Transport, b []byte) {
	err := t.Send(b)
	r.m.Send(err)
	if err != nil {
		r.log.Debug("ws.send_failed", "err", err)
	}
}

// encode passes raw frames through untouched so relayed signaling stays verbatim
func encode(msg any) ([]byte, error) {
	switch v := msg.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

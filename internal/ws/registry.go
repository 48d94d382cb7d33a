package ws

import (
	"log/slog"
	"sync"

	"voice-rooms/pkg/metrics"
)

// Registry tracks live connections per room. rooms and members are only
// touched under mu; a room entry exists iff it has at least one member.
type Registry struct {
	log *slog.Logger
	m   *metrics.Metrics

	mu      sync.Mutex
	rooms   map[string]*Room      // room id -> members in join order
	members map[Transport]*Member // transport -> its member, for O(1) teardown
}

func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		log:     logger,
		m:       m,
		rooms:   map[string]*Room{},
		members: map[Transport]*Member{},
	}
}

// Connect registers t in roomID and tells the rest of the room. It returns
// the member and the room size after the join. A transport that is already
// registered keeps its original room.
func (r *Registry) Connect(t Transport, roomID, userID, username string) (Member, int) {
	r.mu.Lock()
	if existing := r.members[t]; existing != nil {
		me, total := *existing, r.rooms[existing.RoomID].len()
		r.mu.Unlock()
		return me, total
	}

	rm := r.rooms[roomID]
	if rm == nil {
		rm = newRoom(roomID)
		r.rooms[roomID] = rm
	}
	m := &Member{t: t, RoomID: roomID, UserID: userID, Username: username}
	rm.add(m)
	r.members[t] = m

	me, total := *m, rm.len()
	others := rm.transports(t)
	r.m.SetPresence(len(r.rooms), len(r.members))
	r.mu.Unlock()

	r.sendAll(others, UserJoinedMsg{
		Type:       TypeUserJoined,
		RoomID:     roomID,
		User:       me.Info(),
		TotalUsers: total,
	})
	return me, total
}

// Disconnect removes t. Unknown transports are a no-op (ok=false), so a
// transport layer firing close twice is harmless. remaining is the room size
// after removal; the room entry is gone when it reaches zero.
func (r *Registry) Disconnect(t Transport) (me Member, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.members[t]
	if m == nil {
		return Member{}, 0, false
	}
	delete(r.members, t)

	if rm := r.rooms[m.RoomID]; rm != nil {
		rm.remove(t)
		remaining = rm.len()
		if remaining == 0 {
			delete(r.rooms, m.RoomID)
		}
	}
	r.m.SetPresence(len(r.rooms), len(r.members))
	return *m, remaining, true
}

// Members snapshots the users currently in roomID
func (r *Registry) Members(roomID string) []UserInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[roomID]
	if rm == nil {
		return []UserInfo{}
	}
	return rm.infos()
}

// Count is the live size of roomID
func (r *Registry) Count(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm := r.rooms[roomID]; rm != nil {
		return rm.len()
	}
	return 0
}

func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// SetVoiceStatus flips the voice flag on every connection of userID in
// roomID. Returns false when the user is no longer there.
func (r *Registry) SetVoiceStatus(roomID, userID string, inVoice bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[roomID]
	if rm == nil {
		return false
	}
	found := false
	for _, m := range rm.members {
		if m.UserID == userID {
			m.InVoice = inVoice
			found = true
		}
	}
	return found
}

// SetTyping records the transient typing flag of one connection
func (r *Registry) SetTyping(t Transport, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.members[t]; m != nil {
		m.Typing = typing
	}
}

// CloseAll empties the registry and closes every transport. Used on shutdown;
// later Disconnect calls from the receive loops are no-ops.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ts := make([]Transport, 0, len(r.members))
	for t := range r.members {
		ts = append(ts, t)
	}
	r.rooms = map[string]*Room{}
	r.members = map[Transport]*Member{}
	r.m.SetPresence(0, 0)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range ts {
		wg.Add(1)
		go func(t Transport) {
			defer wg.Done()
			_ = t.Close()
		}(t)
	}
	wg.Wait()
	r.log.Info("ws.closed_all", "connections", len(ts))
}

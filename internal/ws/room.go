package ws

// Transport is the send side of one live connection. Send must not block:
// implementations queue the frame or fail fast.
type Transport interface {
	Send(b []byte) error
	Close() error
}

// UserInfo is the public view of a room member
type UserInfo struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	IsInVoice bool   `json:"is_in_voice"`
}

// Member is one connection registered in one room. Fields are guarded by
// the owning Registry's lock.
type Member struct {
	t        Transport
	RoomID   string
	UserID   string
	Username string
	InVoice  bool
	Typing   bool
}

func (m *Member) Transport() Transport { return m.t }

func (m *Member) Info() UserInfo {
	return UserInfo{UserID: m.UserID, Username: m.Username, IsInVoice: m.InVoice}
}

// Room is the runtime member list of one room, in join order
type Room struct {
	id      string
	members []*Member
}

func newRoom(id string) *Room { return &Room{id: id} }

func (r *Room) add(m *Member) { r.members = append(r.members, m) }

// remove drops the member owning t, keeping join order
func (r *Room) remove(t Transport) bool {
	for i, m := range r.members {
		if m.t == t {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) len() int { return len(r.members) }

// transports snapshots recipients, skipping exclude
func (r *Room) transports(exclude Transport) []Transport {
	out := make([]Transport, 0, len(r.members))
	for _, m := range r.members {
		if m.t != exclude {
			out = append(out, m.t)
		}
	}
	return out
}

func (r *Room) infos() []UserInfo {
	out := make([]UserInfo, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Info())
	}
	return out
}

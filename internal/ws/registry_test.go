package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"voice-rooms/internal/app"
	"voice-rooms/pkg/metrics"
)

// fakeTransport records frames; fail makes every Send error
type fakeTransport struct {
	name string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed int
}

func newFake(name string) *fakeTransport { return &fakeTransport{name: name} }

func (f *fakeTransport) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, b)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// msgs decodes every received frame
func (f *fakeTransport) msgs(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, b := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func newTestRegistry() (*Registry, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewRegistry(app.DiscardLogger(), m), m
}

// checkInvariants asserts room-entry-iff-nonempty and one-entry-per-transport
func checkInvariants(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := 0
	for id, rm := range r.rooms {
		require.NotZero(t, rm.len(), "room %q kept with no members", id)
		seen += rm.len()
	}
	require.Equal(t, len(r.members), seen, "forward and inverse maps disagree")

	for tr, m := range r.members {
		rm := r.rooms[m.RoomID]
		require.NotNil(t, rm, "member points at missing room %q", m.RoomID)
		n := 0
		for _, other := range rm.members {
			if other.t == tr {
				n++
			}
		}
		require.Equal(t, 1, n, "transport listed %d times in %q", n, m.RoomID)
	}
}

func TestConnectNotifiesOthers(t *testing.T) {
	r, _ := newTestRegistry()
	a, b := newFake("a"), newFake("b")

	_, total := r.Connect(a, "r1", "ua", "Ann")
	assert.Equal(t, 1, total)
	assert.Zero(t, a.count(), "nobody to notify on first join")

	me, total := r.Connect(b, "r1", "ub", "Bob")
	assert.Equal(t, 2, total)
	assert.Equal(t, "ub", me.UserID)
	assert.False(t, me.InVoice)
	assert.False(t, me.Typing)

	got := a.msgs(t)
	require.Len(t, got, 1)
	assert.Equal(t, TypeUserJoined, got[0]["type"])
	assert.Equal(t, "r1", got[0]["room_id"])
	assert.EqualValues(t, 2, got[0]["total_users"])
	user := got[0]["user"].(map[string]any)
	assert.Equal(t, "ub", user["user_id"])
	assert.Equal(t, "Bob", user["username"])
	assert.Equal(t, false, user["is_in_voice"])

	assert.Zero(t, b.count(), "joiner hears nothing about itself")
	checkInvariants(t, r)
}

func TestConnectTwiceKeepsFirstRoom(t *testing.T) {
	r, _ := newTestRegistry()
	a := newFake("a")

	r.Connect(a, "r1", "ua", "Ann")
	me, total := r.Connect(a, "r2", "ua", "Ann")
	assert.Equal(t, "r1", me.RoomID)
	assert.Equal(t, 1, total)
	assert.Zero(t, r.Count("r2"))
	checkInvariants(t, r)
}

func TestDisconnectRemovesEmptyRoom(t *testing.T) {
	r, m := newTestRegistry()
	a, b := newFake("a"), newFake("b")
	r.Connect(a, "r1", "ua", "Ann")
	r.Connect(b, "r1", "ub", "Bob")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Connections))

	me, remaining, ok := r.Disconnect(b)
	require.True(t, ok)
	assert.Equal(t, "ub", me.UserID)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, 1, r.Rooms())
	checkInvariants(t, r)

	_, remaining, ok = r.Disconnect(a)
	require.True(t, ok)
	assert.Zero(t, remaining)
	assert.Zero(t, r.Rooms())
	assert.Zero(t, r.Connections())
	assert.Zero(t, testutil.ToFloat64(m.Rooms))
	checkInvariants(t, r)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry()
	a, b := newFake("a"), newFake("b")
	r.Connect(a, "r1", "ua", "Ann")
	r.Connect(b, "r1", "ub", "Bob")

	_, _, ok := r.Disconnect(b)
	require.True(t, ok)
	_, _, ok = r.Disconnect(b)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count("r1"))

	_, _, ok = r.Disconnect(newFake("never-connected"))
	assert.False(t, ok)
	checkInvariants(t, r)
}

func TestDisconnectKeepsJoinOrder(t *testing.T) {
	r, _ := newTestRegistry()
	ts := []*fakeTransport{newFake("a"), newFake("b"), newFake("c")}
	for i, tr := range ts {
		r.Connect(tr, "r1", fmt.Sprintf("u%d", i), tr.name)
	}
	r.Disconnect(ts[1])

	members := r.Members("r1")
	require.Len(t, members, 2)
	assert.Equal(t, "u0", members[0].UserID)
	assert.Equal(t, "u2", members[1].UserID)
}

func TestMembersSnapshot(t *testing.T) {
	r, _ := newTestRegistry()
	assert.Empty(t, r.Members("nope"))
	assert.NotNil(t, r.Members("nope"), "empty list, not null, for JSON")

	a := newFake("a")
	r.Connect(a, "r1", "ua", "Ann")
	snap := r.Members("r1")
	require.True(t, r.SetVoiceStatus("r1", "ua", true))
	assert.False(t, snap[0].IsInVoice, "snapshot is a copy")
	assert.True(t, r.Members("r1")[0].IsInVoice)
}

func TestSetVoiceStatus(t *testing.T) {
	r, _ := newTestRegistry()
	r.Connect(newFake("a"), "r1", "ua", "Ann")

	assert.True(t, r.SetVoiceStatus("r1", "ua", true))
	assert.True(t, r.Members("r1")[0].IsInVoice)
	assert.True(t, r.SetVoiceStatus("r1", "ua", false))
	assert.False(t, r.Members("r1")[0].IsInVoice)

	assert.False(t, r.SetVoiceStatus("r1", "ghost", true))
	assert.False(t, r.SetVoiceStatus("r2", "ua", true))
}

func TestSetTyping(t *testing.T) {
	r, _ := newTestRegistry()
	a := newFake("a")
	r.Connect(a, "r1", "ua", "Ann")
	r.SetTyping(a, true)

	r.mu.Lock()
	typing := r.members[a].Typing
	r.mu.Unlock()
	assert.True(t, typing)

	assert.NotPanics(t, func() { r.SetTyping(newFake("x"), true) })
}

func TestBroadcastExclusion(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("%d members", n), func(t *testing.T) {
			r, _ := newTestRegistry()
			ts := make([]*fakeTransport, n)
			for i := range ts {
				ts[i] = newFake(fmt.Sprint(i))
				r.Connect(ts[i], "r1", fmt.Sprint(i), "user")
			}
			for _, tr := range ts {
				tr.reset()
			}

			excluded := newFake("outsider")
			if n > 0 {
				excluded = ts[0]
			}
			r.Broadcast("r1", map[string]string{"type": "ping"}, excluded)

			assert.Zero(t, excluded.count())
			for _, tr := range ts[min(1, n):] {
				assert.Equal(t, 1, tr.count(), tr.name)
			}
		})
	}
}

func TestBroadcastScopedToRoom(t *testing.T) {
	r, _ := newTestRegistry()
	a, c := newFake("a"), newFake("c")
	r.Connect(a, "r1", "ua", "Ann")
	r.Connect(c, "r2", "uc", "Cid")

	r.Broadcast("r1", map[string]string{"type": "x"}, nil)
	r.Broadcast("missing", map[string]string{"type": "x"}, nil)

	assert.Equal(t, 1, a.count())
	assert.Zero(t, c.count())
}

func TestBroadcastRawIsVerbatim(t *testing.T) {
	r, _ := newTestRegistry()
	a, b := newFake("a"), newFake("b")
	r.Connect(a, "r1", "ua", "Ann")
	r.Connect(b, "r1", "ub", "Bob")
	a.reset()

	frame := []byte(`{"type":"offer","offer":{"sdp":"v=0 ","type":"offer"}}`)
	r.Broadcast("r1", json.RawMessage(frame), a)

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.frames, 1)
	assert.Equal(t, frame, b.frames[0])
}

func TestSendFailuresAreIsolated(t *testing.T) {
	r, m := newTestRegistry()
	a, bad, c := newFake("a"), newFake("bad"), newFake("c")
	r.Connect(a, "r1", "ua", "Ann")
	r.Connect(bad, "r1", "ub", "Bad")
	r.Connect(c, "r1", "uc", "Cid")
	for _, tr := range []*fakeTransport{a, bad, c} {
		tr.reset()
	}
	bad.fail = true

	before := testutil.ToFloat64(m.SendFailures)
	r.Broadcast("r1", map[string]string{"type": "x"}, nil)
	r.SendTo(bad, map[string]string{"type": "y"})

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, c.count())
	assert.Equal(t, before+2, testutil.ToFloat64(m.SendFailures))
	assert.Equal(t, 3, r.Connections(), "send failure alone does not unregister")
}

func TestCloseAll(t *testing.T) {
	r, _ := newTestRegistry()
	a, b := newFake("a"), newFake("b")
	r.Connect(a, "r1", "ua", "Ann")
	r.Connect(b, "r2", "ub", "Bob")

	r.CloseAll()
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Zero(t, r.Rooms())

	_, _, ok := r.Disconnect(a)
	assert.False(t, ok)
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	r, _ := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr := newFake(fmt.Sprint(i))
			room := fmt.Sprintf("r%d", i%3)
			r.Connect(tr, room, tr.name, "user")
			r.Broadcast(room, map[string]string{"type": "x"}, tr)
			r.SetVoiceStatus(room, tr.name, true)
			if i%2 == 0 {
				r.Disconnect(tr)
				r.Disconnect(tr)
			}
		}(i)
	}
	wg.Wait()

	checkInvariants(t, r)
	assert.Equal(t, 25, r.Connections())
}

package ws

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// within fails the test if fn has not returned after d
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("blocked for more than %s", d)
	}
}

// stalledConn is a Conn whose writer never drains the queue, like a peer
// that has stopped reading
func stalledConn(buffer int) *Conn {
	return NewConn(nil, buffer, time.Minute)
}

func TestConnSendQueueFull(t *testing.T) {
	c := stalledConn(2)

	within(t, time.Second, func() {
		assert.NoError(t, c.Send([]byte("1")))
		assert.NoError(t, c.Send([]byte("2")))
		for i := 0; i < 100; i++ {
			assert.ErrorIs(t, c.Send([]byte("x")), ErrSendQueueFull)
		}
	})
}

func TestBroadcastNotHeldUpByStalledMember(t *testing.T) {
	reg, m := newTestRegistry()
	slow := stalledConn(1)
	healthy := newFake("healthy")

	reg.Connect(slow, "r1", "u1", "Slow")
	reg.Connect(healthy, "r1", "u2", "Healthy") // fills slow's single slot

	within(t, time.Second, func() {
		for i := 0; i < 20; i++ {
			reg.Broadcast("r1", map[string]any{"type": "tick", "n": i}, nil)
		}
	})

	assert.Equal(t, 20, healthy.count())
	assert.Equal(t, 20.0, testutil.ToFloat64(m.SendFailures))
	assert.Equal(t, 2, reg.Count("r1"), "a full queue does not unregister the member")
	checkInvariants(t, reg)
}

func TestStalledPeerDoesNotBlockRoom(t *testing.T) {
	e := newHubEnv(t)

	e.dial(t, "r1", "us", "Slow") // never reads
	fast := e.dial(t, "r1", "uf", "Fast")
	talker := e.dial(t, "r1", "ut", "Talk")
	require.Equal(t, TypeUserJoined, read(t, fast)["type"])

	offer := map[string]any{"type": "offer", "offer": map[string]any{"sdp": strings.Repeat("a", 16<<10)}}
	for i := 0; i < 40; i++ {
		send(t, talker, offer)
	}
	for i := 0; i < 40; i++ {
		require.Equal(t, TypeOffer, read(t, fast)["type"], "frame %d", i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, talker.Write(ctx, websocket.MessageText, []byte(`{"type":"typing","is_typing":true}`)))
	assert.Equal(t, TypeUserTyping, read(t, fast)["type"])
}

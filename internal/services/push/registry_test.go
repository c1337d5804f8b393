package push

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/notification"
)

func testRegistry() *Registry {
	return NewRegistry(Config{
		Heartbeat: time.Hour, // keep timers out of the way
		IdleTTL:   time.Hour,
		Buffer:    16,
	}, zap.NewNop())
}

func recvEvent(t *testing.T, s *Stream) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event within 1s")
		return Event{}
	}
}

func TestOpen_FirstEventIsConnected(t *testing.T) {
	r := testRegistry()
	s := r.Open(42)
	defer r.Drop(s, "test done")

	ev := recvEvent(t, s)
	require.Equal(t, EventConnected, ev.Event)
	require.True(t, r.Connected(42))
}

func TestOpen_SecondStreamClosesFirst(t *testing.T) {
	r := testRegistry()
	first := r.Open(42)
	recvEvent(t, first)

	second := r.Open(42)
	defer r.Drop(second, "test done")

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("first stream not closed after second open")
	}

	// the old stream's terminal frame names the reason
	var sawClose bool
	for {
		select {
		case ev := <-first.Events():
			if ev.Event == EventClose {
				sawClose = true
			}
			continue
		default:
		}
		break
	}
	require.True(t, sawClose)

	// registry still tracks exactly one stream for the user
	require.Equal(t, 1, r.Len())
	require.Equal(t, EventConnected, recvEvent(t, second).Event)
}

func TestSend_NoConnectionIsNoop(t *testing.T) {
	r := testRegistry()
	require.False(t, r.Send(7, &notification.Notification{ID: 1, UserID: 7}))
}

func TestSend_DeliversNotification(t *testing.T) {
	r := testRegistry()
	s := r.Open(7)
	defer r.Drop(s, "test done")
	recvEvent(t, s)

	n := &notification.Notification{ID: 11, UserID: 7, Title: "Trip tomorrow"}
	require.True(t, r.Send(7, n))

	ev := recvEvent(t, s)
	require.Equal(t, EventNotification, ev.Event)
	require.Same(t, n, ev.Data)
}

func TestDrop_Idempotent(t *testing.T) {
	r := testRegistry()
	s := r.Open(9)

	r.Drop(s, "first")
	require.NotPanics(t, func() { r.Drop(s, "second") })
	require.False(t, r.Connected(9))
	require.Equal(t, 0, r.Len())
}

func TestDrop_ReplacedStreamDoesNotEvictSuccessor(t *testing.T) {
	r := testRegistry()
	first := r.Open(5)
	second := r.Open(5)
	defer r.Drop(second, "test done")

	r.Drop(first, "late cleanup")
	require.True(t, r.Connected(5))
}

func TestSlowConsumerIsDropped(t *testing.T) {
	r := NewRegistry(Config{Heartbeat: time.Hour, IdleTTL: time.Hour, Buffer: 1}, zap.NewNop())
	s := r.Open(3) // connected frame fills the 1-slot buffer

	require.False(t, r.Send(3, &notification.Notification{ID: 1, UserID: 3}))
	require.False(t, r.Connected(3))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("slow stream not closed")
	}
}

func TestIdleTTL_ClosesStream(t *testing.T) {
	r := NewRegistry(Config{Heartbeat: time.Hour, IdleTTL: 20 * time.Millisecond, Buffer: 16}, zap.NewNop())
	s := r.Open(4)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream not closed by idle TTL")
	}
	require.Eventually(t, func() bool { return !r.Connected(4) }, time.Second, 5*time.Millisecond)
}

func TestHeartbeat_Emitted(t *testing.T) {
	r := NewRegistry(Config{Heartbeat: 10 * time.Millisecond, IdleTTL: time.Hour, Buffer: 16}, zap.NewNop())
	s := r.Open(6)
	defer r.Drop(s, "test done")
	recvEvent(t, s)

	ev := recvEvent(t, s)
	require.Equal(t, EventHeartbeat, ev.Event)
}

func TestShutdown_ClosesEverything(t *testing.T) {
	r := testRegistry()
	a := r.Open(1)
	b := r.Open(2)

	r.Shutdown()

	for _, s := range []*Stream{a, b} {
		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatal("stream not closed on shutdown")
		}
	}
	require.Equal(t, 0, r.Len())
}

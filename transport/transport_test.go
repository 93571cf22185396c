package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// collect 轮询直到 pred 满足或超时，返回期间收到的全部事件
func collect(t *testing.T, tr Transport, pred func([]Event) bool) []Event {
	t.Helper()
	var got []Event
	require.Eventually(t, func() bool {
		got = append(got, tr.Poll()...)
		return pred(got)
	}, 3*time.Second, 5*time.Millisecond)
	return got
}

func hasKind(kind EventKind) func([]Event) bool {
	return func(evs []Event) bool {
		for _, ev := range evs {
			if ev.Kind == kind {
				return true
			}
		}
		return false
	}
}

func receivedCount(n int) func([]Event) bool {
	return func(evs []Event) bool {
		c := 0
		for _, ev := range evs {
			if ev.Kind == EventReceive {
				c++
			}
		}
		return c >= n
	}
}

func payloads(evs []Event) []string {
	var out []string
	for _, ev := range evs {
		if ev.Kind == EventReceive {
			out = append(out, string(ev.Payload))
		}
	}
	return out
}

func TestLoopbackConnectSendClose(t *testing.T) {
	network := NewLoopbackNetwork()
	host := network.Endpoint("10.0.0.1")
	client := network.Endpoint("10.0.0.2")
	require.NoError(t, host.Listen(7777))
	assert.ErrorIs(t, host.Listen(7777), ErrAlreadyListening)

	ch, err := client.Connect("10.0.0.1", 7777)
	require.NoError(t, err)

	cev := client.Poll()
	require.Len(t, cev, 1)
	assert.Equal(t, EventConnect, cev[0].Kind)
	assert.Equal(t, ch, cev[0].Handle)

	hev := host.Poll()
	require.Len(t, hev, 1)
	assert.Equal(t, EventConnect, hev[0].Kind)
	assert.Equal(t, "10.0.0.2", hev[0].Addr)
	hh := hev[0].Handle

	require.NoError(t, client.Send(ch, []byte("a"), Reliable))
	require.NoError(t, client.Send(ch, []byte("b"), Unreliable))
	assert.Equal(t, []string{"a", "b"}, payloads(host.Poll()))

	host.Broadcast([]byte("c"), Reliable)
	assert.Equal(t, []string{"c"}, payloads(client.Poll()))

	client.Close(ch)
	assert.Empty(t, client.Poll())
	hev = host.Poll()
	require.Len(t, hev, 1)
	assert.Equal(t, EventDisconnect, hev[0].Kind)
	assert.Equal(t, hh, hev[0].Handle)

	assert.ErrorIs(t, client.Send(ch, []byte("x"), Reliable), ErrUnknownHandle)
}

func TestLoopbackConnectToNobody(t *testing.T) {
	network := NewLoopbackNetwork()
	client := network.Endpoint("10.0.0.2")

	h, err := client.Connect("10.0.0.9", 7777)
	require.NoError(t, err)
	ev := client.Poll()
	require.Len(t, ev, 1)
	assert.Equal(t, EventDisconnect, ev[0].Kind)
	assert.Equal(t, h, ev[0].Handle)
}

func TestLoopbackDropsOnlyUnreliable(t *testing.T) {
	network := NewLoopbackNetwork()
	network.SetDropRate(1)
	host := network.Endpoint("h")
	client := network.Endpoint("c")
	require.NoError(t, host.Listen(1))
	ch, err := client.Connect("h", 1)
	require.NoError(t, err)
	host.Poll()

	for i := 0; i < 10; i++ {
		require.NoError(t, client.Send(ch, []byte("u"), Unreliable))
	}
	require.NoError(t, client.Send(ch, []byte("r"), Reliable))
	assert.Equal(t, []string{"r"}, payloads(host.Poll()))
}

func TestLoopbackShutdownDisconnectsPeers(t *testing.T) {
	network := NewLoopbackNetwork()
	host := network.Endpoint("h")
	require.NoError(t, host.Listen(1))
	a := network.Endpoint("a")
	b := network.Endpoint("b")
	_, err := a.Connect("h", 1)
	require.NoError(t, err)
	_, err = b.Connect("h", 1)
	require.NoError(t, err)
	a.Poll()
	b.Poll()

	require.NoError(t, host.Shutdown())
	assert.True(t, hasKind(EventDisconnect)(a.Poll()))
	assert.True(t, hasKind(EventDisconnect)(b.Poll()))

	// 监听地址已释放
	other := network.Endpoint("h")
	require.NoError(t, other.Listen(1))
}

func TestWebSocketRoundTrip(t *testing.T) {
	log := zap.NewNop().Sugar()
	host := NewWebSocket(log, WebSocketOptions{})
	require.NoError(t, host.Listen(0))
	t.Cleanup(func() { _ = host.Shutdown() })
	port := host.Addr().(*net.TCPAddr).Port

	client := NewWebSocket(log, WebSocketOptions{})
	t.Cleanup(func() { _ = client.Shutdown() })
	ch, err := client.Connect("127.0.0.1", port)
	require.NoError(t, err)

	// 连接建立前排队的可靠消息在连上后按序发出
	require.NoError(t, client.Send(ch, []byte("hello"), Reliable))
	collect(t, client, hasKind(EventConnect))

	hev := collect(t, host, receivedCount(1))
	require.Equal(t, EventConnect, hev[0].Kind)
	hh := hev[0].Handle
	assert.Equal(t, []string{"hello"}, payloads(hev))

	for _, s := range []string{"1", "2", "3"} {
		require.NoError(t, host.Send(hh, []byte(s), Reliable))
	}
	cev := collect(t, client, receivedCount(3))
	assert.Equal(t, []string{"1", "2", "3"}, payloads(cev))

	host.Close(hh)
	collect(t, client, hasKind(EventDisconnect))
	assert.ErrorIs(t, host.Send(hh, []byte("x"), Reliable), ErrUnknownHandle)
}

func TestWebSocketDialFailureReportsDisconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	client := NewWebSocket(zap.NewNop().Sugar(), WebSocketOptions{DialTimeout: time.Second})
	t.Cleanup(func() { _ = client.Shutdown() })
	h, err := client.Connect("127.0.0.1", port)
	require.NoError(t, err)

	evs := collect(t, client, hasKind(EventDisconnect))
	assert.Equal(t, h, evs[len(evs)-1].Handle)
}

func TestWebSocketRefusesBeyondMaxPeers(t *testing.T) {
	log := zap.NewNop().Sugar()
	host := NewWebSocket(log, WebSocketOptions{MaxPeers: 1})
	require.NoError(t, host.Listen(0))
	t.Cleanup(func() { _ = host.Shutdown() })
	port := host.Addr().(*net.TCPAddr).Port

	first := NewWebSocket(log, WebSocketOptions{})
	t.Cleanup(func() { _ = first.Shutdown() })
	_, err := first.Connect("127.0.0.1", port)
	require.NoError(t, err)
	collect(t, first, hasKind(EventConnect))

	second := NewWebSocket(log, WebSocketOptions{})
	t.Cleanup(func() { _ = second.Shutdown() })
	_, err = second.Connect("127.0.0.1", port)
	require.NoError(t, err)
	collect(t, second, hasKind(EventDisconnect))
}

// dialPair 建立一条 host<->client 连接，返回双方句柄
func dialPair(t *testing.T, opts WebSocketOptions) (host, client *WebSocket, hh, ch Handle) {
	t.Helper()
	log := zap.NewNop().Sugar()
	host = NewWebSocket(log, opts)
	require.NoError(t, host.Listen(0))
	t.Cleanup(func() { _ = host.Shutdown() })
	port := host.Addr().(*net.TCPAddr).Port

	client = NewWebSocket(log, WebSocketOptions{})
	t.Cleanup(func() { _ = client.Shutdown() })
	ch, err := client.Connect("127.0.0.1", port)
	require.NoError(t, err)
	collect(t, client, hasKind(EventConnect))
	hev := collect(t, host, hasKind(EventConnect))
	return host, client, hev[0].Handle, ch
}

// 收到的消息必须排在断开事件之前
func assertReceivedBeforeDisconnect(t *testing.T, evs []Event, want []string) {
	t.Helper()
	var got []string
	for _, ev := range evs {
		if ev.Kind == EventDisconnect {
			break
		}
		if ev.Kind == EventReceive {
			got = append(got, string(ev.Payload))
		}
	}
	assert.Equal(t, want, got)
}

func TestWebSocketCloseFlushesReliableQueue(t *testing.T) {
	host, client, hh, _ := dialPair(t, WebSocketOptions{})

	require.NoError(t, host.Send(hh, []byte("reject"), Reliable))
	require.NoError(t, host.Send(hh, []byte("bye"), Reliable))
	host.Close(hh)

	evs := collect(t, client, hasKind(EventDisconnect))
	assertReceivedBeforeDisconnect(t, evs, []string{"reject", "bye"})
	assert.Empty(t, host.Poll(), "Close must not report a disconnect")
}

func TestWebSocketShutdownFlushesBroadcast(t *testing.T) {
	host, client, _, _ := dialPair(t, WebSocketOptions{})

	host.Broadcast([]byte("shutting down"), Reliable)
	require.NoError(t, host.Shutdown())

	evs := collect(t, client, hasKind(EventDisconnect))
	assertReceivedBeforeDisconnect(t, evs, []string{"shutting down"})
}

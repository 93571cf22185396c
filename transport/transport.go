package transport

import (
	"errors"

	"github.com/sasha-s/go-deadlock"
)

// Handle 连接句柄：每个 Transport 内单调分配，不复用
type Handle uint32

// Reliability 投递类别
type Reliability uint8

const (
	// Unreliable 可丢弃：高频快照与输入，队列满即丢
	Unreliable Reliability = iota
	// Reliable 可靠有序：房间/对局控制与对象创建销毁事件
	Reliable
)

func (r Reliability) String() string {
	if r == Reliable {
		return "reliable"
	}
	return "unreliable"
}

// EventKind 轮询事件类型
type EventKind uint8

const (
	EventConnect EventKind = iota + 1
	EventDisconnect
	EventReceive
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventReceive:
		return "receive"
	default:
		return "unknown"
	}
}

// Event 由 Poll 返回；Payload 仅在 EventReceive 时有值
type Event struct {
	Kind    EventKind
	Handle  Handle
	Addr    string
	Payload []byte
}

var (
	ErrClosed           = errors.New("transport: closed")
	ErrUnknownHandle    = errors.New("transport: unknown handle")
	ErrAlreadyListening = errors.New("transport: already listening")
	ErrServerFull       = errors.New("transport: server full")
)

// Transport 面向连接的双通道数据报链路。
// Poll 永不阻塞；Connect 立即返回句柄，连接结果由之后的 Poll 以事件形式给出。
type Transport interface {
	Listen(port int) error
	Connect(address string, port int) (Handle, error)
	Poll() []Event
	Send(h Handle, payload []byte, r Reliability) error
	Broadcast(payload []byte, r Reliability)
	Close(h Handle)
	Shutdown() error
}

// eventQueue 读协程写入、Tick 线程一次性取走
type eventQueue struct {
	mu     deadlock.Mutex
	events []Event
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	out := q.events
	q.events = nil
	q.mu.Unlock()
	return out
}

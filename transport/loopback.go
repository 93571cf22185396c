package transport

import (
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"

	"github.com/sasha-s/go-deadlock"
)

// LoopbackNetwork 进程内网络：按 "host:port" 寻址的一组 Loopback 端点。
// 用于测试与本地多实例试跑，不可靠消息可按比例确定性丢弃。
type LoopbackNetwork struct {
	mu        deadlock.Mutex
	listeners map[string]*Loopback
	dropRate  float64
	rng       *rand.Rand
}

func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{
		listeners: make(map[string]*Loopback),
		rng:       rand.New(rand.NewPCG(1, 2)),
	}
}

// SetDropRate 设置不可靠消息丢弃概率 [0,1]
func (n *LoopbackNetwork) SetDropRate(rate float64) {
	n.mu.Lock()
	n.dropRate = rate
	n.mu.Unlock()
}

func (n *LoopbackNetwork) shouldDrop() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropRate > 0 && n.rng.Float64() < n.dropRate
}

// Endpoint 创建一个端点；host 作为其对外地址（监听键与对端看到的 Addr）
func (n *LoopbackNetwork) Endpoint(host string) *Loopback {
	return &Loopback{
		net:   n,
		host:  host,
		links: make(map[Handle]*link),
	}
}

// link 一条连接在本端的视图
type link struct {
	remote       *Loopback
	remoteHandle Handle
	addr         string
}

// Loopback 进程内 Transport 实现
type Loopback struct {
	net  *LoopbackNetwork
	host string

	mu     deadlock.Mutex
	links  map[Handle]*link
	next   Handle
	key    string
	closed bool

	events eventQueue
}

var _ Transport = (*Loopback)(nil)

func (l *Loopback) Listen(port int) error {
	key := net.JoinHostPort(l.host, strconv.Itoa(port))
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.key != "" {
		return ErrAlreadyListening
	}

	l.net.mu.Lock()
	defer l.net.mu.Unlock()
	if _, taken := l.net.listeners[key]; taken {
		return fmt.Errorf("listen on %s: address in use", key)
	}
	l.net.listeners[key] = l
	l.key = key
	return nil
}

// Connect 查找监听端并立即建立双向链路；两端在下一次 Poll 看到 EventConnect。
// 目标不存在时本端在下一次 Poll 看到 EventDisconnect。
func (l *Loopback) Connect(address string, port int) (Handle, error) {
	key := net.JoinHostPort(address, strconv.Itoa(port))
	l.net.mu.Lock()
	remote := l.net.listeners[key]
	l.net.mu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	l.next++
	h := l.next
	l.mu.Unlock()

	if remote == nil || remote == l {
		l.events.push(Event{Kind: EventDisconnect, Handle: h, Addr: key})
		return h, nil
	}
	rh, ok := remote.accept(l, h, l.host)
	if !ok {
		l.events.push(Event{Kind: EventDisconnect, Handle: h, Addr: key})
		return h, nil
	}
	l.mu.Lock()
	l.links[h] = &link{remote: remote, remoteHandle: rh, addr: key}
	l.mu.Unlock()
	l.events.push(Event{Kind: EventConnect, Handle: h, Addr: key})
	return h, nil
}

func (l *Loopback) accept(from *Loopback, fromHandle Handle, addr string) (Handle, bool) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, false
	}
	l.next++
	h := l.next
	l.links[h] = &link{remote: from, remoteHandle: fromHandle, addr: addr}
	l.mu.Unlock()
	l.events.push(Event{Kind: EventConnect, Handle: h, Addr: addr})
	return h, true
}

func (l *Loopback) Poll() []Event {
	return l.events.drain()
}

func (l *Loopback) Send(h Handle, payload []byte, r Reliability) error {
	l.mu.Lock()
	lk, ok := l.links[h]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	l.deliver(lk, payload, r)
	return nil
}

func (l *Loopback) deliver(lk *link, payload []byte, r Reliability) {
	if r == Unreliable && l.net.shouldDrop() {
		return
	}
	b := make([]byte, len(payload))
	copy(b, payload)
	lk.remote.events.push(Event{Kind: EventReceive, Handle: lk.remoteHandle, Addr: l.host, Payload: b})
}

func (l *Loopback) Broadcast(payload []byte, r Reliability) {
	l.mu.Lock()
	links := make([]*link, 0, len(l.links))
	for _, lk := range l.links {
		links = append(links, lk)
	}
	l.mu.Unlock()
	for _, lk := range links {
		l.deliver(lk, payload, r)
	}
}

// Close 断开本端链路；对端收到 EventDisconnect，本端不产生事件
func (l *Loopback) Close(h Handle) {
	l.mu.Lock()
	lk, ok := l.links[h]
	delete(l.links, h)
	l.mu.Unlock()
	if ok {
		lk.remote.remoteClosed(lk.remoteHandle)
	}
}

func (l *Loopback) remoteClosed(h Handle) {
	l.mu.Lock()
	lk, ok := l.links[h]
	delete(l.links, h)
	l.mu.Unlock()
	if ok {
		l.events.push(Event{Kind: EventDisconnect, Handle: h, Addr: lk.addr})
	}
}

func (l *Loopback) Shutdown() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	handles := make([]Handle, 0, len(l.links))
	for h := range l.links {
		handles = append(handles, h)
	}
	key := l.key
	l.mu.Unlock()

	for _, h := range handles {
		l.Close(h)
	}
	if key != "" {
		l.net.mu.Lock()
		delete(l.net.listeners, key)
		l.net.mu.Unlock()
	}
	return nil
}

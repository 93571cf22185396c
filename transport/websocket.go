package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const maxMessageSize = 64 << 10

// WebSocketOptions WebSocket 传输的可调参数，零值使用默认值
type WebSocketOptions struct {
	Path         string        // 升级端点，默认 /arena
	MaxPeers     int           // 同时在线连接上限，<=0 表示不限
	SendQueue    int           // 每连接不可靠队列容量
	PingInterval time.Duration // 心跳间隔
	ReadTimeout  time.Duration // 超过此时间未收到任何数据（含 pong）则断开
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.Path == "" {
		o.Path = "/arena"
	}
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	return o
}

// WebSocket 基于 gorilla/websocket 的 Transport 实现。
// 每个连接一个读协程一个写协程；Tick 线程只通过 Poll/Send 与之交互。
type WebSocket struct {
	opts     WebSocketOptions
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	mu     deadlock.Mutex
	peers  map[Handle]*peer
	next   Handle
	srv    *http.Server
	ln     net.Listener
	closed bool

	events eventQueue
}

var _ Transport = (*WebSocket)(nil)

func NewWebSocket(log *zap.SugaredLogger, opts WebSocketOptions) *WebSocket {
	opts = opts.withDefaults()
	return &WebSocket{
		opts: opts,
		log:  log.Named("transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 局域网对战，不校验来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{HandshakeTimeout: opts.DialTimeout},
		peers:  make(map[Handle]*peer),
	}
}

// Listen 在 :port 上提供升级端点；port 为 0 时由系统分配（见 Addr）
func (t *WebSocket) Listen(port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.srv != nil {
		return ErrAlreadyListening
	}
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	r := chi.NewRouter()
	r.Get(t.opts.Path, t.handleUpgrade)
	t.ln = ln
	t.srv = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Errorf("serve: %v", err)
		}
	}(t.srv)
	t.log.Infof("listening on %s%s", ln.Addr(), t.opts.Path)
	return nil
}

// Addr 监听地址，未监听时为 nil
func (t *WebSocket) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

func (t *WebSocket) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// 先占位再升级，容量检查与登记在同一把锁内完成
	p, err := t.register(r.RemoteAddr, t.opts.MaxPeers)
	if err != nil {
		t.log.Warnf("refusing connection from %s: %v", r.RemoteAddr, err)
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warnf("upgrade error: %v", err)
		t.Close(p.handle)
		return
	}
	if !p.attach(ws) {
		_ = ws.Close()
		return
	}
	t.events.push(Event{Kind: EventConnect, Handle: p.handle, Addr: p.addr})
	t.start(p)
}

// Connect 异步拨号 ws://address:port/path。
// 成功后 Poll 返回 EventConnect，失败返回 EventDisconnect。
func (t *WebSocket) Connect(address string, port int) (Handle, error) {
	hostport := net.JoinHostPort(address, strconv.Itoa(port))
	p, err := t.register(hostport, 0)
	if err != nil {
		return 0, err
	}
	url := "ws://" + hostport + t.opts.Path

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.opts.DialTimeout)
		defer cancel()
		ws, _, err := t.dialer.DialContext(ctx, url, nil)
		if err != nil {
			t.log.Warnf("dial %s: %v", url, err)
			t.drop(p)
			return
		}
		if !p.attach(ws) {
			// 拨号期间已被 Close
			_ = ws.Close()
			return
		}
		t.events.push(Event{Kind: EventConnect, Handle: p.handle, Addr: p.addr})
		t.start(p)
	}()
	return p.handle, nil
}

func (t *WebSocket) register(addr string, limit int) (*peer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if limit > 0 && len(t.peers) >= limit {
		return nil, ErrServerFull
	}
	t.next++
	p := newPeer(t.next, addr, t.opts.SendQueue)
	t.peers[p.handle] = p
	return p, nil
}

func (t *WebSocket) start(p *peer) {
	go t.writePump(p)
	go t.readPump(p)
}

// drop 读写协程退出或拨号失败时调用；仍在表中才上报断开
func (t *WebSocket) drop(p *peer) {
	t.mu.Lock()
	cur, ok := t.peers[p.handle]
	if ok && cur == p {
		delete(t.peers, p.handle)
	}
	t.mu.Unlock()
	_ = p.close()
	if ok {
		t.events.push(Event{Kind: EventDisconnect, Handle: p.handle, Addr: p.addr})
	}
}

func (t *WebSocket) Poll() []Event {
	return t.events.drain()
}

// Send 可靠消息进入无界有序队列；不可靠消息队列满时直接丢弃
func (t *WebSocket) Send(h Handle, payload []byte, r Reliability) error {
	t.mu.Lock()
	p, ok := t.peers[h]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	p.enqueue(payload, r)
	return nil
}

func (t *WebSocket) Broadcast(payload []byte, r Reliability) {
	t.mu.Lock()
	peers := make([]*peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()
	for _, p := range peers {
		p.enqueue(payload, r)
	}
}

// Close 主动断开；已排队的可靠消息先写出再发送关闭帧。不会产生 EventDisconnect
func (t *WebSocket) Close(h Handle) {
	t.mu.Lock()
	p, ok := t.peers[h]
	delete(t.peers, h)
	t.mu.Unlock()
	if ok {
		p.shutdown(t.opts.WriteTimeout)
	}
}

// Shutdown 关闭所有连接与监听，汇总关闭错误
func (t *WebSocket) Shutdown() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	peers := t.peers
	t.peers = make(map[Handle]*peer)
	srv := t.srv
	t.mu.Unlock()

	// 各连接并行写完可靠队列，统一在 WriteTimeout 内收尾
	deadline := time.Now().Add(t.opts.WriteTimeout)
	for _, p := range peers {
		p.shutdown(t.opts.WriteTimeout)
	}
	var err error
	for _, p := range peers {
		err = multierr.Append(err, p.wait(time.Until(deadline)))
	}
	if srv != nil {
		err = multierr.Append(err, srv.Close())
	}
	return err
}

// writePump 独立协程：可靠队列优先写出，同时处理不可靠队列与心跳
func (t *WebSocket) writePump(p *peer) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer func() {
		ticker.Stop()
		t.drop(p)
	}()

	for {
		select {
		case <-p.done:
			return
		case <-p.closing:
			for _, msg := range p.takeReliable() {
				if err := t.write(p.ws, websocket.BinaryMessage, msg); err != nil {
					return
				}
			}
			return
		case <-p.notify:
			for _, msg := range p.takeReliable() {
				if err := t.write(p.ws, websocket.BinaryMessage, msg); err != nil {
					return
				}
			}
		case msg := <-p.unreliable:
			if err := t.write(p.ws, websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := t.write(p.ws, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (t *WebSocket) write(ws *websocket.Conn, kind int, msg []byte) error {
	_ = ws.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	return ws.WriteMessage(kind, msg)
}

// readPump 读取二进制帧并转为 EventReceive；退出即视为断开
func (t *WebSocket) readPump(p *peer) {
	defer t.drop(p)
	ws := p.ws
	ws.SetReadLimit(maxMessageSize)
	extend := func() { _ = ws.SetReadDeadline(time.Now().Add(t.opts.ReadTimeout)) }
	extend()
	ws.SetPongHandler(func(string) error { extend(); return nil })

	for {
		kind, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Debugf("read from %s: %v", p.addr, err)
			}
			return
		}
		extend()
		if kind != websocket.BinaryMessage {
			continue
		}
		t.events.push(Event{Kind: EventReceive, Handle: p.handle, Addr: p.addr, Payload: payload})
	}
}

// peer 单个连接的发送侧状态
type peer struct {
	handle Handle
	addr   string
	ws     *websocket.Conn // attach 之后不再变化

	mu       deadlock.Mutex
	reliable [][]byte
	closed   bool

	notify      chan struct{}
	unreliable  chan []byte
	closing     chan struct{} // 优雅关闭：写协程清空可靠队列后退出
	closingOnce sync.Once
	done        chan struct{}
	finished    chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

func newPeer(h Handle, addr string, queue int) *peer {
	return &peer{
		handle:     h,
		addr:       addr,
		notify:     make(chan struct{}, 1),
		unreliable: make(chan []byte, queue),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// attach 绑定底层连接；连接已关闭时返回 false
func (p *peer) attach(ws *websocket.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.ws = ws
	return true
}

func (p *peer) enqueue(b []byte, r Reliability) {
	if r == Reliable {
		p.mu.Lock()
		p.reliable = append(p.reliable, b)
		p.mu.Unlock()
		select {
		case p.notify <- struct{}{}:
		default:
		}
		return
	}
	select {
	case p.unreliable <- b:
	default:
		// 为了实时性丢弃，下一帧快照会覆盖
	}
}

func (p *peer) takeReliable() [][]byte {
	p.mu.Lock()
	out := p.reliable
	p.reliable = nil
	p.mu.Unlock()
	return out
}

func (p *peer) close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		ws := p.ws
		p.mu.Unlock()
		close(p.done)
		if ws != nil {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			p.closeErr = ws.Close()
		}
		close(p.finished)
	})
	return p.closeErr
}

// shutdown 请求优雅关闭，grace 之后仍未完成则强制关闭。
// 尚未建立的连接直接关闭。
func (p *peer) shutdown(grace time.Duration) {
	p.mu.Lock()
	attached := p.ws != nil && !p.closed
	p.mu.Unlock()
	if !attached {
		_ = p.close()
		return
	}
	p.closingOnce.Do(func() {
		close(p.closing)
		time.AfterFunc(grace, func() { _ = p.close() })
	})
}

// wait 等待连接彻底关闭，超时则强制关闭
func (p *peer) wait(timeout time.Duration) error {
	select {
	case <-p.finished:
		return p.closeErr
	case <-time.After(timeout):
		return p.close()
	}
}

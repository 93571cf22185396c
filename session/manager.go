package session

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"arenanet/lobby"
	"arenanet/match"
	"arenanet/protocol"
	"arenanet/publish"
	"arenanet/transport"
)

var (
	ErrRoleActive   = errors.New("session: network role already active")
	ErrNoRoom       = errors.New("session: not in a room")
	ErrMatchActive  = errors.New("session: a match is already in progress")
	ErrNotConnected = errors.New("session: not connected to a host")
	ErrHostLost     = errors.New("session: connection to host lost")
	ErrRejected     = errors.New("session: rejected by host")
)

// TransportFactory 在角色激活时创建传输层
type TransportFactory func() transport.Transport

// Manager 会话上下文：持有角色、传输层、房间、连接与当前对局。
// 除 Status / Metrics / LastError 外，所有方法只能在 Tick 线程调用。
type Manager struct {
	opts         Options
	log          *zap.SugaredLogger
	newTransport TransportFactory
	pub          publish.Publisher
	metrics      *Metrics

	role  RoleHandler
	tr    transport.Transport
	rooms *lobby.Registry
	conns *ConnectionRegistry

	match       *match.Match
	nextMatchID match.ID

	local      lobby.ParticipantID
	roomID     lobby.RoomID
	remoteRoom *lobby.Summary  // 参与者视角的当前房间
	knownRooms []lobby.Summary // 参与者最近一次收到的房间列表
	intent     match.Intent

	ticks   uint64
	now     time.Time
	polling bool

	lastErr atomic.Pointer[error]
	status  atomic.Pointer[Snapshot]
}

// NewManager 创建处于 standalone 角色的会话，本地玩家 id 立即分配
func NewManager(log *zap.SugaredLogger, opts Options, newTransport TransportFactory, pub publish.Publisher) *Manager {
	if pub == nil {
		pub = publish.Nop{}
	}
	if opts.Oracle == nil {
		opts.Oracle = match.DefaultArena(opts.Match.Width, opts.Match.Height)
	}
	m := &Manager{
		opts:         opts,
		log:          log.Named("session"),
		newTransport: newTransport,
		pub:          pub,
		metrics:      &Metrics{},
		rooms:        lobby.NewRegistry(),
		conns:        NewConnectionRegistry(opts.MaxConnections),
	}
	m.local = m.conns.Allocate()
	m.role = &standalone{m: m}
	m.publishStatus()
	return m
}

func (m *Manager) Role() Role                   { return m.role.Role() }
func (m *Manager) LocalID() lobby.ParticipantID { return m.local }
func (m *Manager) Metrics() *Metrics            { return m.metrics }
func (m *Manager) Options() Options             { return m.opts }

// Match 当前（或最近结束的）对局，可能为 nil
func (m *Manager) Match() *match.Match { return m.match }

// LastError 最近一次角色激活失败或与主机断开的原因；任意协程可读
func (m *Manager) LastError() error {
	if p := m.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (m *Manager) setLastError(err error) {
	m.lastErr.Store(&err)
}

// StartHost 监听端口并切换为主机。失败时保持 standalone 并记录错误。
func (m *Manager) StartHost(port int) error {
	if m.role.Role() != RoleStandalone {
		return ErrRoleActive
	}
	tr := m.newTransport()
	if err := tr.Listen(port); err != nil {
		_ = tr.Shutdown()
		err = fmt.Errorf("start host on port %d: %w", port, err)
		m.setLastError(err)
		m.log.Errorw("host activation failed", "port", port, "error", err)
		return err
	}
	m.tr = tr
	m.role = newHost(m)
	m.log.Infow("hosting", "port", port, "local", m.local, "orphanPolicy", m.opts.Orphan)
	m.publishStatus()
	return nil
}

// Join 连接主机并切换为参与者。连接结果在之后的 Tick 中以事件到达。
func (m *Manager) Join(address string, port int) error {
	if m.role.Role() != RoleStandalone {
		return ErrRoleActive
	}
	tr := m.newTransport()
	h, err := tr.Connect(address, port)
	if err != nil {
		_ = tr.Shutdown()
		err = fmt.Errorf("join %s:%d: %w", address, port, err)
		m.setLastError(err)
		m.log.Errorw("participant activation failed", "address", address, "port", port, "error", err)
		return err
	}
	if m.match != nil {
		m.match.End()
		m.match = nil
	}
	m.tr = tr
	m.local = 0
	m.roomID = 0
	m.role = newParticipant(m, h)
	m.log.Infow("joining host", "address", address, "port", port)
	m.publishStatus()
	return nil
}

// revertToStandalone 关闭传输层并丢弃网络状态
func (m *Manager) revertToStandalone(reason error) {
	prev := m.role.Role()
	if m.tr != nil {
		if err := m.tr.Shutdown(); err != nil {
			m.log.Warnw("transport shutdown", "error", err)
		}
		m.tr = nil
	}
	m.match = nil
	m.rooms = lobby.NewRegistry()
	m.roomID = 0
	m.remoteRoom = nil
	m.knownRooms = nil
	m.intent = match.Intent{}
	m.local = m.conns.Allocate()
	m.role = &standalone{m: m}
	if reason != nil {
		m.setLastError(reason)
	}
	m.log.Warnw("reverted to standalone", "from", prev, "reason", reason)
}

// SetIntent 记录本地玩家最新意图；开火触发被锁存到下一次消费
func (m *Manager) SetIntent(in match.Intent) {
	fire := m.intent.Fire || in.Fire
	m.intent = in
	m.intent.Fire = fire
}

func (m *Manager) CreateRoom(name string, capacity int) error { return m.role.CreateRoom(name, capacity) }
func (m *Manager) JoinRoom(id lobby.RoomID) error             { return m.role.JoinRoom(id) }
func (m *Manager) RequestRoomList() error                     { return m.role.RequestRoomList() }
func (m *Manager) StartMatch() error                          { return m.role.StartMatch() }

// Tick 单线程推进一帧：轮询事件 → 模拟 → 同步 → 发布状态
func (m *Manager) Tick(now time.Time) {
	m.ticks++
	m.now = now
	m.poll()
	m.role.Simulate(now)
	m.role.Sync(now)
	m.publishStatus()
}

// poll 取走本帧所有传输事件并分发。不可重入：处理事件期间再次轮询会被拒绝。
// 角色在分发中途改变时，剩余事件属于已关闭的传输层，直接丢弃。
func (m *Manager) poll() {
	if m.tr == nil {
		return
	}
	if m.polling {
		m.metrics.IncReentrantPolls()
		m.log.Warn("nested poll rejected")
		return
	}
	m.polling = true
	defer func() { m.polling = false }()

	handler := m.role
	for _, ev := range m.tr.Poll() {
		if m.role != handler {
			break
		}
		handler.HandleEvent(ev)
	}
}

// Shutdown 关闭传输层与发布器，回到 standalone
func (m *Manager) Shutdown() error {
	var err error
	if h, ok := m.role.(*host); ok {
		h.shutdown()
	}
	if m.tr != nil {
		err = m.tr.Shutdown()
		m.tr = nil
	}
	if m.role.Role() != RoleStandalone {
		m.role = &standalone{m: m}
	}
	if perr := m.pub.Close(); perr != nil && err == nil {
		err = perr
	}
	m.publishStatus()
	return err
}

// SetCadence 运行时调整同步节奏；零值字段保持不变
func (m *Manager) SetCadence(c Cadence) {
	if c.InputInterval > 0 {
		m.opts.InputInterval = c.InputInterval
	}
	if c.PlayerStateInterval > 0 {
		m.opts.PlayerStateInterval = c.PlayerStateInterval
	}
	if c.ProjectileInterval > 0 {
		m.opts.ProjectileInterval = c.ProjectileInterval
	}
	if c.PingInterval > 0 {
		m.opts.PingInterval = c.PingInterval
	}
	m.log.Infow("cadence updated", "cadence", m.Cadence())
}

// SetOrphanPolicy 只影响之后发生的断线
func (m *Manager) SetOrphanPolicy(p OrphanPolicy) {
	m.opts.Orphan = p
	m.log.Infow("orphan policy updated", "policy", p)
}

func (m *Manager) Cadence() Cadence {
	return Cadence{
		InputInterval:       m.opts.InputInterval,
		PlayerStateInterval: m.opts.PlayerStateInterval,
		ProjectileInterval:  m.opts.ProjectileInterval,
		PingInterval:        m.opts.PingInterval,
	}
}

// sendTo 编码一次后发给多个连接；可靠性由消息类型决定
func (m *Manager) sendTo(msg protocol.Message, handles ...transport.Handle) {
	if m.tr == nil || len(handles) == 0 {
		return
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		m.log.Errorw("encode failed", "type", msg.Type(), "error", err)
		return
	}
	rel := reliabilityOf(msg.Type())
	for _, h := range handles {
		if err := m.tr.Send(h, payload, rel); err != nil {
			m.log.Debugw("send failed", "handle", h, "type", msg.Type(), "error", err)
			continue
		}
		m.metrics.AddOut(1)
	}
}

func (m *Manager) broadcast(msg protocol.Message) {
	if m.tr == nil {
		return
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		m.log.Errorw("encode failed", "type", msg.Type(), "error", err)
		return
	}
	m.tr.Broadcast(payload, reliabilityOf(msg.Type()))
	m.metrics.AddOut(m.conns.Len())
}

func reliabilityOf(t protocol.MessageType) transport.Reliability {
	if t.Reliable() {
		return transport.Reliable
	}
	return transport.Unreliable
}

// decode 解码失败的包被丢弃并计数，不影响连接
func (m *Manager) decode(ev transport.Event) (protocol.Message, bool) {
	msg, err := protocol.Decode(ev.Payload)
	if err != nil {
		m.metrics.IncDecodeErrors()
		tag, _ := protocol.PeekType(ev.Payload)
		m.log.Warnw("dropping malformed message", "handle", ev.Handle, "tag", tag, "size", len(ev.Payload), "error", err)
		return nil, false
	}
	m.metrics.IncIn()
	return msg, true
}

func (m *Manager) publishStarted(mt *match.Match) {
	ids := make([]int32, 0, len(mt.Players()))
	for _, p := range mt.Players() {
		ids = append(ids, int32(p.ID))
	}
	var roomID int32
	if mt.Room() != nil {
		roomID = int32(mt.Room().ID)
	}
	m.pub.Publish(publish.Event{
		Type:    publish.TypeMatchStarted,
		Content: publish.MatchStarted{MatchID: int32(mt.ID), RoomID: roomID, Participants: ids, At: time.Now().UTC()},
	})
}

func (m *Manager) publishEnded(mt *match.Match) {
	var roomID int32
	if mt.Room() != nil {
		roomID = int32(mt.Room().ID)
	}
	m.pub.Publish(publish.Event{
		Type:    publish.TypeMatchEnded,
		Content: publish.MatchEnded{MatchID: int32(mt.ID), RoomID: roomID, Winner: int32(mt.Winner()), At: time.Now().UTC()},
	})
}

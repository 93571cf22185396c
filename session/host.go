package session

import (
	"time"

	"arenanet/lobby"
	"arenanet/match"
	"arenanet/protocol"
	"arenanet/transport"
)

// host 权威方：接受连接、裁决房间请求、运行对局并向成员同步状态
type host struct {
	m           *Manager
	states      cadence
	projectiles cadence
}

func newHost(m *Manager) *host { return &host{m: m} }

func (h *host) Role() Role { return RoleHost }

func (h *host) HandleEvent(ev transport.Event) {
	m := h.m
	switch ev.Kind {
	case transport.EventConnect:
		h.onConnect(ev)
	case transport.EventDisconnect:
		h.onDisconnect(ev.Handle)
	case transport.EventReceive:
		conn, ok := m.conns.ByHandle(ev.Handle)
		if !ok {
			m.log.Debugw("message from unknown connection", "handle", ev.Handle)
			return
		}
		if msg, ok := m.decode(ev); ok {
			h.dispatch(conn, msg)
		}
	}
}

func (h *host) onConnect(ev transport.Event) {
	m := h.m
	conn, err := m.conns.Accept(ev.Handle, ev.Addr)
	if err != nil {
		m.log.Warnw("rejecting connection", "handle", ev.Handle, "addr", ev.Addr, "error", err)
		m.sendTo(protocol.ServerReject{Reason: protocol.RejectServerFull}, ev.Handle)
		m.tr.Close(ev.Handle)
		return
	}
	m.metrics.IncConnects()
	m.log.Infow("participant connected", "participant", conn.Participant, "handle", conn.Handle, "addr", conn.Addr)
	m.sendTo(protocol.ServerAccept{ParticipantID: int32(conn.Participant)}, conn.Handle)
}

// onDisconnect 解除映射；等待中的房间移除该成员，进行中的对局按孤儿策略处理
func (h *host) onDisconnect(hd transport.Handle) {
	m := h.m
	conn, ok := m.conns.Remove(hd)
	if !ok {
		return
	}
	m.metrics.IncDisconnects()
	pid := conn.Participant
	m.log.Infow("participant disconnected", "participant", pid, "name", conn.Name, "handle", hd)

	if room, ok := m.rooms.Leave(pid); ok {
		h.roomUpdate(room)
	}

	mt := m.match
	if mt == nil || mt.State() != match.StateInProgress {
		return
	}
	if _, ok := mt.Player(pid); !ok {
		return
	}
	switch m.opts.Orphan {
	case OrphanFreeze:
		mt.Freeze(pid)
	default:
		mt.Eliminate(pid)
	}
	m.log.Infow("orphaned entity handled", "match", mt.ID, "participant", pid, "policy", m.opts.Orphan)
	h.endIfAbandoned(mt)
}

// endIfAbandoned 对局中已没有任何在线成员时直接结束，无胜者
func (h *host) endIfAbandoned(mt *match.Match) {
	m := h.m
	for _, p := range mt.Players() {
		if p.ID == m.local {
			return
		}
		if _, ok := m.conns.HandleOf(p.ID); ok {
			return
		}
	}
	mt.End()
	m.log.Infow("match abandoned", "match", mt.ID)
	m.publishEnded(mt)
	h.announceEnd(mt)
}

func (h *host) dispatch(conn *Connection, msg protocol.Message) {
	m := h.m
	pid := conn.Participant
	switch msg := msg.(type) {
	case protocol.ClientConnect:
		m.conns.SetName(conn.Handle, msg.Name)
		m.log.Infow("participant named", "participant", pid, "name", msg.Name)

	case protocol.ClientDisconnect:
		m.tr.Close(conn.Handle)
		h.onDisconnect(conn.Handle)

	case protocol.CreateRoomRequest:
		room, err := m.createRoomFor(pid, msg.Name, int(msg.Capacity))
		if err != nil {
			h.rejected(pid, "create room", err)
			m.sendTo(protocol.CreateRoomResponse{Name: msg.Name, Capacity: msg.Capacity}, conn.Handle)
			return
		}
		m.sendTo(protocol.CreateRoomResponse{
			Success:  true,
			RoomID:   int32(room.ID),
			Name:     room.Name,
			Capacity: int32(room.Capacity),
		}, conn.Handle)
		h.roomUpdate(room)

	case protocol.JoinRoomRequest:
		room, err := m.joinRoomFor(pid, lobby.RoomID(msg.RoomID))
		if err != nil {
			h.rejected(pid, "join room", err)
			m.sendTo(protocol.JoinRoomResponse{RoomID: msg.RoomID}, conn.Handle)
			return
		}
		m.sendTo(protocol.JoinRoomResponse{
			Success:  true,
			RoomID:   int32(room.ID),
			Name:     room.Name,
			Capacity: int32(room.Capacity),
			Count:    int32(room.Count()),
		}, conn.Handle)
		h.roomUpdate(room)

	case protocol.RoomListRequest:
		joinable := m.rooms.ListJoinable()
		resp := protocol.RoomListResponse{Rooms: make([]protocol.RoomInfo, 0, len(joinable))}
		for _, s := range joinable {
			resp.Rooms = append(resp.Rooms, roomInfoOf(s))
		}
		m.sendTo(resp, conn.Handle)

	case protocol.StartMatchRequest:
		_ = h.startMatch(pid)

	case protocol.PlayerInput:
		h.applyInput(pid, msg)

	case protocol.Ping:
		m.sendTo(protocol.Pong{Timestamp: msg.Timestamp}, conn.Handle)

	case protocol.Pong:

	default:
		m.log.Debugw("ignoring message not meant for host", "type", msg.Type(), "participant", pid)
	}
}

func (h *host) rejected(pid lobby.ParticipantID, op string, err error) {
	h.m.metrics.IncPolicyRejections()
	h.m.log.Infow("request rejected", "op", op, "participant", pid, "error", err)
}

// startMatch 开局后先向房间成员发送应答，再为每个实体发送可靠的出生事件
func (h *host) startMatch(pid lobby.ParticipantID) error {
	m := h.m
	mt, err := m.startMatchFor(pid)
	if err != nil {
		h.rejected(pid, "start match", err)
		if hd, ok := m.conns.HandleOf(pid); ok {
			m.sendTo(protocol.StartMatchResponse{}, hd)
		}
		return err
	}
	members := h.memberHandles(mt.Room())
	m.sendTo(protocol.StartMatchResponse{Success: true, MatchID: int32(mt.ID)}, members...)
	for _, p := range mt.Players() {
		m.sendTo(playerSpawnOf(p), members...)
	}
	h.roomUpdate(mt.Room())
	h.states.reset()
	h.projectiles.reset()
	return nil
}

func (h *host) applyInput(pid lobby.ParticipantID, msg protocol.PlayerInput) {
	m := h.m
	mt := m.match
	if mt == nil || mt.State() != match.StateInProgress {
		return
	}
	if err := mt.ApplyIntent(pid, inputToIntent(msg)); err != nil {
		m.log.Debugw("input ignored", "participant", pid, "error", err)
		return
	}
	m.metrics.IncInputsAccepted()
}

// memberHandles 房间内远端成员的连接句柄（本地玩家不在其中）
func (h *host) memberHandles(room *lobby.Room) []transport.Handle {
	if room == nil {
		return nil
	}
	var out []transport.Handle
	for _, pid := range room.Participants() {
		if hd, ok := h.m.conns.HandleOf(pid); ok {
			out = append(out, hd)
		}
	}
	return out
}

func (h *host) roomUpdate(room *lobby.Room) {
	h.m.sendTo(protocol.RoomUpdate{Room: roomInfoOf(room.Summary())}, h.memberHandles(room)...)
}

// announceEnd 先补发最终玩家状态，再可靠地通知结束与胜者
func (h *host) announceEnd(mt *match.Match) {
	m := h.m
	members := h.memberHandles(mt.Room())
	for _, p := range mt.Players() {
		m.sendTo(playerStateOf(p), members...)
	}
	m.sendTo(protocol.MatchState{
		MatchID:  int32(mt.ID),
		State:    uint8(match.StateEnded),
		WinnerID: int32(mt.Winner()),
	}, members...)
	h.roomUpdate(mt.Room())
}

func (h *host) Simulate(time.Time) {
	m := h.m
	events := m.simulateAuthoritative()
	if len(events) == 0 {
		return
	}
	mt := m.match
	members := h.memberHandles(mt.Room())
	for _, ev := range events {
		switch e := ev.(type) {
		case match.ProjectileSpawned:
			m.sendTo(projectileSpawnOf(e.Projectile), members...)
		case match.ProjectileRemoved:
			m.sendTo(protocol.ProjectileRemove{ProjectileID: uint32(e.ID)}, members...)
		case match.Ended:
			h.announceEnd(mt)
		}
	}
}

// Sync 按节拍向对局成员发送完整的玩家与子弹快照（不可靠）
func (h *host) Sync(now time.Time) {
	m := h.m
	mt := m.match
	if mt == nil || mt.State() != match.StateInProgress {
		return
	}
	members := h.memberHandles(mt.Room())
	if len(members) == 0 {
		return
	}
	if h.states.due(now, m.opts.PlayerStateInterval) {
		for _, p := range mt.Players() {
			m.sendTo(playerStateOf(p), members...)
		}
	}
	if h.projectiles.due(now, m.opts.ProjectileInterval) {
		for _, pr := range mt.Projectiles() {
			m.sendTo(protocol.ProjectileUpdate{
				ProjectileID: uint32(pr.ID),
				X:            float32(pr.X),
				Y:            float32(pr.Y),
			}, members...)
		}
	}
}

func (h *host) CreateRoom(name string, capacity int) error {
	room, err := h.m.createRoomFor(h.m.local, name, capacity)
	if err != nil {
		h.rejected(h.m.local, "create room", err)
		return err
	}
	h.roomUpdate(room)
	return nil
}

func (h *host) JoinRoom(id lobby.RoomID) error {
	room, err := h.m.joinRoomFor(h.m.local, id)
	if err != nil {
		h.rejected(h.m.local, "join room", err)
		return err
	}
	h.roomUpdate(room)
	return nil
}

// RequestRoomList 主机的房间表就在本地，快照中始终是最新的
func (h *host) RequestRoomList() error { return nil }

func (h *host) StartMatch() error { return h.startMatch(h.m.local) }

// shutdown 通知所有连接主机即将关闭，并结束进行中的对局
func (h *host) shutdown() {
	m := h.m
	if mt := m.match; mt != nil && mt.State() == match.StateInProgress {
		mt.End()
		m.publishEnded(mt)
		h.announceEnd(mt)
	}
	m.broadcast(protocol.ServerReject{Reason: protocol.RejectShuttingDown})
}

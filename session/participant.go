package session

import (
	"fmt"
	"time"

	"arenanet/lobby"
	"arenanet/match"
	"arenanet/protocol"
	"arenanet/transport"
)

// participant 连接到主机的一方：上传输入、镜像主机的对局并预测自身实体
type participant struct {
	m         *Manager
	hostConn  transport.Handle
	connected bool
	accepted  bool
	inputs    cadence
	pings     cadence
}

func newParticipant(m *Manager, h transport.Handle) *participant {
	return &participant{m: m, hostConn: h}
}

func (p *participant) Role() Role { return RoleParticipant }

func (p *participant) HandleEvent(ev transport.Event) {
	m := p.m
	if ev.Handle != p.hostConn {
		return
	}
	switch ev.Kind {
	case transport.EventConnect:
		p.connected = true
		m.metrics.IncConnects()
		m.log.Infow("connected to host", "addr", ev.Addr)
		m.sendTo(protocol.ClientConnect{Name: m.opts.Name}, p.hostConn)
	case transport.EventDisconnect:
		m.metrics.IncDisconnects()
		if !p.connected {
			m.revertToStandalone(fmt.Errorf("%w: could not reach %s", ErrNotConnected, ev.Addr))
			return
		}
		m.revertToStandalone(ErrHostLost)
	case transport.EventReceive:
		if msg, ok := m.decode(ev); ok {
			p.dispatch(msg)
		}
	}
}

func (p *participant) dispatch(msg protocol.Message) {
	m := p.m
	switch msg := msg.(type) {
	case protocol.ServerAccept:
		p.accepted = true
		m.local = lobby.ParticipantID(msg.ParticipantID)
		m.log.Infow("accepted by host", "participant", m.local)

	case protocol.ServerReject:
		m.revertToStandalone(fmt.Errorf("%w: %s", ErrRejected, msg.Reason))

	case protocol.CreateRoomResponse:
		if !msg.Success {
			p.rejected("create room", msg.RoomID)
			return
		}
		p.enterRoom(lobby.Summary{
			ID:       lobby.RoomID(msg.RoomID),
			Name:     msg.Name,
			Count:    1,
			Capacity: int(msg.Capacity),
			Status:   lobby.StatusWaiting,
		})

	case protocol.JoinRoomResponse:
		if !msg.Success {
			p.rejected("join room", msg.RoomID)
			return
		}
		p.enterRoom(lobby.Summary{
			ID:       lobby.RoomID(msg.RoomID),
			Name:     msg.Name,
			Count:    int(msg.Count),
			Capacity: int(msg.Capacity),
			Status:   lobby.StatusWaiting,
		})

	case protocol.RoomListResponse:
		m.knownRooms = make([]lobby.Summary, 0, len(msg.Rooms))
		for _, info := range msg.Rooms {
			m.knownRooms = append(m.knownRooms, summaryOf(info))
		}

	case protocol.RoomUpdate:
		s := summaryOf(msg.Room)
		if s.ID == m.roomID {
			m.remoteRoom = &s
		}
		for i := range m.knownRooms {
			if m.knownRooms[i].ID == s.ID {
				m.knownRooms[i] = s
			}
		}

	case protocol.StartMatchResponse:
		if !msg.Success {
			p.rejected("start match", int32(m.roomID))
			return
		}
		mt := match.New(match.ID(msg.MatchID), nil, m.opts.Oracle, m.opts.Match)
		mt.BeginMirror()
		m.match = mt
		p.inputs.reset()
		m.log.Infow("match started", "match", mt.ID, "room", m.roomID)

	case protocol.PlayerSpawn:
		if mt := p.activeMatch(); mt != nil {
			mt.MirrorPlayer(lobby.ParticipantID(msg.ParticipantID), float64(msg.X), float64(msg.Y), float64(msg.Angle))
		}

	case protocol.PlayerState:
		p.applyPlayerState(msg)

	case protocol.ProjectileSpawn:
		if mt := p.activeMatch(); mt != nil {
			mt.MirrorProjectile(match.ProjectileID(msg.ProjectileID), lobby.ParticipantID(msg.OwnerID),
				float64(msg.X), float64(msg.Y), float64(msg.VX), float64(msg.VY))
		}

	case protocol.ProjectileUpdate:
		mt := p.activeMatch()
		if mt != nil && mt.ApplyProjectileUpdate(match.ProjectileID(msg.ProjectileID), float64(msg.X), float64(msg.Y)) {
			m.metrics.IncSnapshotsApplied()
		} else {
			m.metrics.IncSnapshotsIgnored()
		}

	case protocol.ProjectileRemove:
		if mt := p.activeMatch(); mt != nil {
			mt.RemoveProjectile(match.ProjectileID(msg.ProjectileID))
		}

	case protocol.MatchState:
		mt := m.match
		if mt == nil || int32(mt.ID) != msg.MatchID || msg.State != uint8(match.StateEnded) {
			return
		}
		mt.MirrorEnd(lobby.ParticipantID(msg.WinnerID))
		m.log.Infow("match ended", "match", mt.ID, "winner", msg.WinnerID)

	case protocol.Ping:
		m.sendTo(protocol.Pong{Timestamp: msg.Timestamp}, p.hostConn)

	case protocol.Pong:
		m.metrics.SetRTT(int64(pingStamp(m.now) - msg.Timestamp))

	default:
		m.log.Debugw("ignoring message not meant for participant", "type", msg.Type())
	}
}

func (p *participant) rejected(op string, roomID int32) {
	p.m.metrics.IncPolicyRejections()
	p.m.log.Infow("host rejected request", "op", op, "room", roomID)
}

// enterRoom 应答不带房间状态；同一房间已知的更晚状态不回退，之后的 RoomUpdate 为准
func (p *participant) enterRoom(s lobby.Summary) {
	if cur := p.m.remoteRoom; cur != nil && cur.ID == s.ID && cur.Status > s.Status {
		s.Status = cur.Status
	}
	p.m.roomID = s.ID
	p.m.remoteRoom = &s
	p.m.log.Infow("entered room", "room", s.ID, "name", s.Name)
}

// activeMatch 镜像对局（仅在进行中时接受实体事件）
func (p *participant) activeMatch() *match.Match {
	mt := p.m.match
	if mt == nil || mt.State() != match.StateInProgress {
		return nil
	}
	return mt
}

// applyPlayerState 他人实体直接覆盖；自身实体向权威位置校正
func (p *participant) applyPlayerState(msg protocol.PlayerState) {
	m := p.m
	mt := p.activeMatch()
	if mt == nil {
		m.metrics.IncSnapshotsIgnored()
		return
	}
	pid := lobby.ParticipantID(msg.ParticipantID)
	x, y := float64(msg.X), float64(msg.Y)
	if owns(RoleParticipant, m.local, pid) {
		pl, ok := mt.Player(pid)
		if !ok {
			m.metrics.IncSnapshotsIgnored()
			return
		}
		reconcile(pl, x, y, msg.Alive, m.opts.SnapDistance, m.opts.BlendFactor)
		m.metrics.IncSnapshotsApplied()
		return
	}
	if mt.ApplyPlayerState(pid, x, y, float64(msg.Angle), msg.Alive) {
		m.metrics.IncSnapshotsApplied()
	} else {
		m.metrics.IncSnapshotsIgnored()
	}
}

func (p *participant) Simulate(time.Time) {
	if mt := p.activeMatch(); mt != nil {
		mt.Predict(p.m.local, p.m.intent)
	}
}

// Sync 心跳与输入上传；输入按节拍发送最新意图，中间的变化被覆盖而不是排队
func (p *participant) Sync(now time.Time) {
	m := p.m
	if !p.accepted {
		return
	}
	if p.pings.due(now, m.opts.PingInterval) {
		m.sendTo(protocol.Ping{Timestamp: pingStamp(now)}, p.hostConn)
	}
	mt := p.activeMatch()
	if mt == nil {
		return
	}
	if _, ok := mt.Player(m.local); !ok {
		return
	}
	if !p.inputs.due(now, m.opts.InputInterval) {
		return
	}
	m.sendTo(intentToInput(m.intent), p.hostConn)
	m.intent.Fire = false
	m.metrics.IncInputsSent()
}

func (p *participant) request(msg protocol.Message) error {
	if !p.accepted {
		return ErrNotConnected
	}
	p.m.sendTo(msg, p.hostConn)
	return nil
}

func (p *participant) CreateRoom(name string, capacity int) error {
	return p.request(protocol.CreateRoomRequest{Name: name, Capacity: int32(capacity)})
}

func (p *participant) JoinRoom(id lobby.RoomID) error {
	return p.request(protocol.JoinRoomRequest{RoomID: int32(id)})
}

func (p *participant) RequestRoomList() error {
	return p.request(protocol.RoomListRequest{})
}

func (p *participant) StartMatch() error {
	return p.request(protocol.StartMatchRequest{RoomID: int32(p.m.roomID)})
}

package session

import (
	"fmt"
	"time"

	"arenanet/lobby"
	"arenanet/match"
	"arenanet/transport"
)

// RoleHandler 每种角色对事件分发、模拟与同步的具体实现。
// 所有方法只在 Tick 线程上调用。
type RoleHandler interface {
	Role() Role

	// HandleEvent 处理一次 Poll 得到的传输层事件
	HandleEvent(ev transport.Event)
	// Simulate 推进本地拥有的实体（权威方还负责子弹、命中与胜负）
	Simulate(now time.Time)
	// Sync 按节拍发送输入或快照
	Sync(now time.Time)

	CreateRoom(name string, capacity int) error
	JoinRoom(id lobby.RoomID) error
	RequestRoomList() error
	StartMatch() error
}

// standalone 无网络：本地房间与本地权威对局
type standalone struct {
	m *Manager
}

func (s *standalone) Role() Role { return RoleStandalone }

func (s *standalone) HandleEvent(transport.Event) {}

func (s *standalone) Simulate(time.Time) { s.m.simulateAuthoritative() }

func (s *standalone) Sync(time.Time) {}

func (s *standalone) CreateRoom(name string, capacity int) error {
	_, err := s.m.createRoomFor(s.m.local, name, capacity)
	return err
}

func (s *standalone) JoinRoom(id lobby.RoomID) error {
	_, err := s.m.joinRoomFor(s.m.local, id)
	return err
}

// RequestRoomList 本地房间表在快照中始终是最新的
func (s *standalone) RequestRoomList() error { return nil }

func (s *standalone) StartMatch() error {
	_, err := s.m.startMatchFor(s.m.local)
	return err
}

// createRoomFor 建房并让请求者自动加入。请求者已在其他活动房间时拒绝。
func (m *Manager) createRoomFor(pid lobby.ParticipantID, name string, capacity int) (*lobby.Room, error) {
	if cur := m.rooms.FindByParticipant(pid); cur != nil {
		return nil, fmt.Errorf("%w: room %d", lobby.ErrAlreadyInRoom, cur.ID)
	}
	room := m.rooms.CreateRoom(name, capacity)
	if _, err := m.rooms.Join(room.ID, pid); err != nil {
		return nil, err
	}
	if pid == m.local {
		m.roomID = room.ID
	}
	m.log.Infow("room created", "room", room.ID, "name", room.Name, "capacity", room.Capacity, "by", pid)
	return room, nil
}

func (m *Manager) joinRoomFor(pid lobby.ParticipantID, id lobby.RoomID) (*lobby.Room, error) {
	room, err := m.rooms.Join(id, pid)
	if err != nil {
		return nil, err
	}
	if pid == m.local {
		m.roomID = room.ID
	}
	m.log.Infow("room joined", "room", room.ID, "participant", pid, "count", room.Count())
	return room, nil
}

// startMatchFor 为请求者所在房间开局。同一时间只允许一场进行中的对局。
func (m *Manager) startMatchFor(pid lobby.ParticipantID) (*match.Match, error) {
	room := m.rooms.FindByParticipant(pid)
	if room == nil {
		return nil, fmt.Errorf("%w: participant %d has no room", ErrNoRoom, pid)
	}
	if m.match != nil && m.match.State() != match.StateEnded {
		return nil, ErrMatchActive
	}
	m.nextMatchID++
	mt := match.New(m.nextMatchID, room, m.opts.Oracle, m.opts.Match)
	if err := mt.Start(); err != nil {
		m.nextMatchID--
		return nil, err
	}
	m.match = mt
	m.log.Infow("match started", "match", mt.ID, "room", room.ID, "players", len(mt.Players()))
	m.publishStarted(mt)
	return mt, nil
}

// simulateAuthoritative 本地玩家意图生效后推进一帧，返回本帧事件
func (m *Manager) simulateAuthoritative() []match.Event {
	mt := m.match
	if mt == nil || mt.State() != match.StateInProgress {
		return nil
	}
	if _, ok := mt.Player(m.local); ok {
		_ = mt.ApplyIntent(m.local, m.intent)
		m.intent.Fire = false
	}
	events := mt.Update()
	for _, ev := range events {
		switch e := ev.(type) {
		case match.PlayerEliminated:
			m.log.Infow("player eliminated", "match", mt.ID, "player", e.ID, "by", e.By)
		case match.Ended:
			m.log.Infow("match ended", "match", mt.ID, "winner", e.Winner)
			m.publishEnded(mt)
		}
	}
	return events
}

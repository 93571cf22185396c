package session

import (
	"arenanet/lobby"
	"arenanet/match"
)

// Snapshot 渲染层与管理接口看到的会话全貌；只读副本，不会创建或修改实体
type Snapshot struct {
	Role        Role                `json:"role"`
	LocalID     lobby.ParticipantID `json:"localId"`
	Tick        uint64              `json:"tick"`
	Connections int                 `json:"connections"`
	Room        *lobby.Summary      `json:"room,omitempty"`
	Rooms       []lobby.Summary     `json:"rooms"`
	Match       *match.Snapshot     `json:"match,omitempty"`
	Cadence     Cadence             `json:"cadence"`
	Orphan      OrphanPolicy        `json:"orphanPolicy"`
	LastError   string              `json:"lastError,omitempty"`
}

// Snapshot 构建当前帧的快照（Tick 线程）
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Role:    m.role.Role(),
		LocalID: m.local,
		Tick:    m.ticks,
		Room:    m.currentRoom(),
		Cadence: m.Cadence(),
		Orphan:  m.opts.Orphan,
	}
	if m.role.Role() == RoleHost {
		s.Connections = m.conns.Len()
	}
	if m.role.Role() == RoleParticipant {
		s.Rooms = append([]lobby.Summary(nil), m.knownRooms...)
	} else {
		s.Rooms = m.rooms.All()
	}
	if m.match != nil {
		ms := m.match.Snapshot()
		s.Match = &ms
	}
	if err := m.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

// Status 最近一次 Tick 结束时发布的快照，任意协程可读
func (m *Manager) Status() Snapshot {
	if s := m.status.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

func (m *Manager) publishStatus() {
	s := m.Snapshot()
	m.status.Store(&s)
}

func (m *Manager) currentRoom() *lobby.Summary {
	if m.role.Role() == RoleParticipant {
		if m.remoteRoom == nil {
			return nil
		}
		r := *m.remoteRoom
		return &r
	}
	if m.roomID == 0 {
		return nil
	}
	room, ok := m.rooms.Get(m.roomID)
	if !ok {
		return nil
	}
	s := room.Summary()
	return &s
}

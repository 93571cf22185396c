package match

import "arenanet/lobby"

// PlayerView 渲染用的玩家快照
type PlayerView struct {
	ID    lobby.ParticipantID `json:"id"`
	X     float64             `json:"x"`
	Y     float64             `json:"y"`
	Angle float64             `json:"angle"`
	Alive bool                `json:"alive"`
}

// ProjectileView 渲染用的子弹快照
type ProjectileView struct {
	ID     ProjectileID        `json:"id"`
	Owner  lobby.ParticipantID `json:"owner"`
	X      float64             `json:"x"`
	Y      float64             `json:"y"`
	Active bool                `json:"active"`
}

// Snapshot 当前所有可见实体的只读副本
type Snapshot struct {
	MatchID     ID                  `json:"matchId"`
	State       State               `json:"state"`
	Tick        uint64              `json:"tick"`
	Winner      lobby.ParticipantID `json:"winner,omitempty"`
	Players     []PlayerView        `json:"players"`
	Projectiles []ProjectileView    `json:"projectiles"`
}

func (m *Match) Snapshot() Snapshot {
	s := Snapshot{
		MatchID:     m.ID,
		State:       m.state,
		Tick:        m.tick,
		Winner:      m.winner,
		Players:     make([]PlayerView, 0, len(m.players)),
		Projectiles: make([]ProjectileView, 0, len(m.projectiles)),
	}
	for _, p := range m.players {
		s.Players = append(s.Players, PlayerView{ID: p.ID, X: p.X, Y: p.Y, Angle: p.Angle, Alive: p.Alive})
	}
	for _, pr := range m.Projectiles() {
		s.Projectiles = append(s.Projectiles, ProjectileView{ID: pr.ID, Owner: pr.Owner, X: pr.X, Y: pr.Y, Active: pr.Active})
	}
	return s
}

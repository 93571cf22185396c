package match

import "arenanet/lobby"

// 以下操作用于参与者侧的镜像对局：实体的创建与销毁只来自可靠事件，
// 周期快照只更新已存在实体的字段。

// BeginMirror 镜像对局直接进入 IN_PROGRESS
func (m *Match) BeginMirror() {
	if m.state == StatePreparing {
		m.state = StateInProgress
	}
}

// MirrorPlayer 根据出生事件建立玩家实体；已存在时只更新位置
func (m *Match) MirrorPlayer(pid lobby.ParticipantID, x, y, angle float64) *Player {
	if p, ok := m.byID[pid]; ok {
		p.X, p.Y, p.Angle = x, y, angle
		return p
	}
	p := &Player{ID: pid, X: x, Y: y, Angle: angle, Alive: true}
	m.addPlayer(p)
	return p
}

// ApplyPlayerState 覆盖镜像玩家的完整快照；未知 id 忽略
func (m *Match) ApplyPlayerState(pid lobby.ParticipantID, x, y, angle float64, alive bool) bool {
	p, ok := m.byID[pid]
	if !ok {
		return false
	}
	p.X, p.Y, p.Angle, p.Alive = x, y, angle, alive
	return true
}

// MirrorProjectile 根据生成事件建立子弹；已删除或已存在的 id 忽略
func (m *Match) MirrorProjectile(id ProjectileID, owner lobby.ParticipantID, x, y, vx, vy float64) bool {
	if _, gone := m.removed[id]; gone {
		return false
	}
	if _, ok := m.projectiles[id]; ok {
		return false
	}
	m.projectiles[id] = &Projectile{
		ID:     id,
		Owner:  owner,
		X:      x,
		Y:      y,
		VX:     vx,
		VY:     vy,
		TTL:    m.cfg.ProjectileTTL,
		Active: true,
	}
	return true
}

// ApplyProjectileUpdate 覆盖子弹位置；未知或已删除的 id 忽略
func (m *Match) ApplyProjectileUpdate(id ProjectileID, x, y float64) bool {
	pr, ok := m.projectiles[id]
	if !ok {
		return false
	}
	pr.X, pr.Y = x, y
	return true
}

// MirrorEnd 主机宣布结束
func (m *Match) MirrorEnd(winner lobby.ParticipantID) {
	m.winner = winner
	m.End()
}

// Predict 参与者对自己实体的本地预测：只移动与转向，不开火
func (m *Match) Predict(pid lobby.ParticipantID, in Intent) {
	p, ok := m.byID[pid]
	if !ok || !p.Alive || m.state != StateInProgress {
		return
	}
	p.intent = in
	p.intent.Fire = false
	p.aiming = true
	p.aim()
	p.applyMove(m.cfg, m.oracle)
}

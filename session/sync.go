package session

import (
	"math"
	"time"

	"arenanet/lobby"
	"arenanet/match"
	"arenanet/protocol"
)

// cadence 以 Tick 时间为准的发送节拍；首次调用立即到期。
// 节拍按周期累加而不是对齐到 Tick，长期频率等于 1/every。
type cadence struct {
	last    time.Time
	started bool
}

func (c *cadence) due(now time.Time, every time.Duration) bool {
	if !c.started {
		c.last, c.started = now, true
		return true
	}
	if now.Sub(c.last) < every {
		return false
	}
	c.last = c.last.Add(every)
	// 落后一个周期以上时不补发，从当前时刻重新计时
	if now.Sub(c.last) >= every {
		c.last = now
	}
	return true
}

func (c *cadence) reset() { c.started = false }

// owns 判断本进程是否对该实体拥有权威
func owns(role Role, local, pid lobby.ParticipantID) bool {
	if role != RoleParticipant {
		return true
	}
	return pid == local
}

// reconcile 将本地预测的自身实体向权威位置校正。
// 存活标记始终以主机为准，朝向保留本地值。
func reconcile(p *match.Player, x, y float64, alive bool, snap, blend float64) {
	p.Alive = alive
	dx, dy := x-p.X, y-p.Y
	if math.Hypot(dx, dy) > snap {
		p.X, p.Y = x, y
		return
	}
	p.X += dx * blend
	p.Y += dy * blend
}

func intentToInput(in match.Intent) protocol.PlayerInput {
	return protocol.PlayerInput{
		Move: in.Move,
		AimX: float32(in.AimX),
		AimY: float32(in.AimY),
		Fire: in.Fire,
	}
}

func inputToIntent(msg protocol.PlayerInput) match.Intent {
	return match.Intent{
		Move: msg.Move,
		AimX: float64(msg.AimX),
		AimY: float64(msg.AimY),
		Fire: msg.Fire,
	}
}

func playerStateOf(p *match.Player) protocol.PlayerState {
	return protocol.PlayerState{
		ParticipantID: int32(p.ID),
		X:             float32(p.X),
		Y:             float32(p.Y),
		Angle:         float32(p.Angle),
		Alive:         p.Alive,
	}
}

func playerSpawnOf(p *match.Player) protocol.PlayerSpawn {
	return protocol.PlayerSpawn{
		ParticipantID: int32(p.ID),
		X:             float32(p.X),
		Y:             float32(p.Y),
		Angle:         float32(p.Angle),
	}
}

func projectileSpawnOf(pr match.Projectile) protocol.ProjectileSpawn {
	return protocol.ProjectileSpawn{
		ProjectileID: uint32(pr.ID),
		X:            float32(pr.X),
		Y:            float32(pr.Y),
		VX:           float32(pr.VX),
		VY:           float32(pr.VY),
		OwnerID:      int32(pr.Owner),
	}
}

func roomInfoOf(s lobby.Summary) protocol.RoomInfo {
	return protocol.RoomInfo{
		RoomID:   int32(s.ID),
		Name:     s.Name,
		Count:    int32(s.Count),
		Capacity: int32(s.Capacity),
		Status:   uint8(s.Status),
	}
}

func summaryOf(info protocol.RoomInfo) lobby.Summary {
	return lobby.Summary{
		ID:       lobby.RoomID(info.RoomID),
		Name:     info.Name,
		Count:    int(info.Count),
		Capacity: int(info.Capacity),
		Status:   lobby.Status(info.Status),
	}
}

// pingStamp 毫秒时间戳的低 32 位，回绕后相减仍得到正确的往返时间
func pingStamp(now time.Time) uint32 { return uint32(now.UnixMilli()) }

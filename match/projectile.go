package match

import (
	"math"
	"time"

	"arenanet/lobby"
)

// ProjectileID 由权威方单调分配，随生成事件下发；非权威方从不自行生成
type ProjectileID uint32

// Projectile 子弹
type Projectile struct {
	ID     ProjectileID
	Owner  lobby.ParticipantID
	X      float64
	Y      float64
	VX     float64
	VY     float64
	Age    time.Duration
	TTL    time.Duration
	Active bool
}

func newProjectile(id ProjectileID, owner lobby.ParticipantID, x, y, angle float64, cfg Config) *Projectile {
	return &Projectile{
		ID:     id,
		Owner:  owner,
		X:      x,
		Y:      y,
		VX:     math.Cos(angle) * cfg.ProjectileSpeed,
		VY:     math.Sin(angle) * cfg.ProjectileSpeed,
		TTL:    cfg.ProjectileTTL,
		Active: true,
	}
}

// advance 推进一个 Tick；寿命耗尽或出界即失活
func (p *Projectile) advance(cfg Config) {
	if !p.Active {
		return
	}
	p.X += p.VX
	p.Y += p.VY
	p.Age += cfg.TickInterval
	if p.Age >= p.TTL || p.outOfBounds(cfg) {
		p.Active = false
	}
}

func (p *Projectile) outOfBounds(cfg Config) bool {
	return p.X < 0 || p.X > cfg.Width || p.Y < 0 || p.Y > cfg.Height
}

// hits 圆形距离检测
func (p *Projectile) hits(pl *Player, cfg Config) bool {
	r := cfg.PlayerRadius + cfg.ProjectileRadius
	dx, dy := p.X-pl.X, p.Y-pl.Y
	return dx*dx+dy*dy < r*r
}

package match

import "time"

// Config 对局调参。速度以每 Tick 位移计。
type Config struct {
	Width  float64
	Height float64

	PlayerRadius     float64
	ProjectileRadius float64
	PlayerSpeed      float64
	ProjectileSpeed  float64

	ProjectileTTL time.Duration
	TickInterval  time.Duration
	FireCooldown  int // ticks

	SpawnAttempts int
}

func DefaultConfig() Config {
	return Config{
		Width:            800,
		Height:           600,
		PlayerRadius:     10,
		ProjectileRadius: 2,
		PlayerSpeed:      2,
		ProjectileSpeed:  10,
		ProjectileTTL:    3 * time.Second,
		TickInterval:     16 * time.Millisecond,
		FireCooldown:     10,
		SpawnAttempts:    30,
	}
}

// spawnMargin 出生点与地图边缘的最小距离
func (c Config) spawnMargin() float64 { return c.PlayerRadius + 10 }

// muzzleOffset 子弹生成点距玩家中心的距离，避免与射手本身重叠
func (c Config) muzzleOffset() float64 { return c.PlayerRadius + c.ProjectileRadius + 1 }

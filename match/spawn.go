package match

import "math"

type point struct{ X, Y float64 }

var (
	spawnMultipliers = []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5}
	spawnJitters     = []float64{0, 0.15, -0.15, 0.3, -0.3}
)

// placeSpawns 为 n 个玩家计算出生点，永不失败。
// 依次尝试：环形候选点（半径递减、角度抖动）→ 四角 → 原始偏移。
func placeSpawns(n int, cfg Config, oracle Oracle) []point {
	out := make([]point, 0, n)
	if n <= 0 {
		return out
	}
	cx, cy := cfg.Width/2, cfg.Height/2
	ring := 0.35 * math.Min(cfg.Width, cfg.Height)
	margin := cfg.spawnMargin()
	r := cfg.PlayerRadius

	free := func(x, y float64) bool {
		if x < margin || x > cfg.Width-margin || y < margin || y > cfg.Height-margin {
			return false
		}
		if !oracle.CanOccupy(x, y, r) {
			return false
		}
		for _, q := range out {
			if math.Hypot(q.X-x, q.Y-y) < 2*r {
				return false
			}
		}
		return true
	}

	for i := 0; i < n; i++ {
		base := 2 * math.Pi * float64(i) / float64(n)
		p, ok := ringCandidate(cx, cy, ring, base, cfg.SpawnAttempts, free)
		if !ok {
			p = cornerFallback(i, cfg, free)
		}
		out = append(out, p)
	}
	return out
}

func ringCandidate(cx, cy, ring, base float64, budget int, free func(x, y float64) bool) (point, bool) {
	attempts := 0
	for _, mult := range spawnMultipliers {
		for _, jitter := range spawnJitters {
			if budget > 0 && attempts >= budget {
				return point{}, false
			}
			attempts++
			a := base + jitter
			x := cx + math.Cos(a)*ring*mult
			y := cy + math.Sin(a)*ring*mult
			if free(x, y) {
				return point{x, y}, true
			}
		}
	}
	return point{}, false
}

// cornerFallback 从第 i%4 个内缩角开始找空位；四角都不可用时沿底边做原始偏移，
// 偏移位置仍被占据时直接使用第一个偏移点
func cornerFallback(i int, cfg Config, free func(x, y float64) bool) point {
	inset := borderSize + cfg.spawnMargin() + cfg.PlayerRadius
	corners := [4]point{
		{inset, inset},
		{cfg.Width - inset, inset},
		{inset, cfg.Height - inset},
		{cfg.Width - inset, cfg.Height - inset},
	}
	for k := 0; k < len(corners); k++ {
		if c := corners[(i+k)%4]; free(c.X, c.Y) {
			return c
		}
	}

	step := 3 * cfg.PlayerRadius
	span := math.Max(cfg.Width-2*inset, step)
	raw := func(k int) point {
		return point{inset + math.Mod(float64(k)*step, span), inset}
	}
	for k := i; k < i+int(span/step); k++ {
		if p := raw(k); free(p.X, p.Y) {
			return p
		}
	}
	return raw(i)
}

package match

// Oracle 外部几何查询：圆形区域是否可占据
type Oracle interface {
	CanOccupy(x, y, radius float64) bool
}

// OracleFunc 允许用函数充当 Oracle
type OracleFunc func(x, y, radius float64) bool

func (f OracleFunc) CanOccupy(x, y, radius float64) bool { return f(x, y, radius) }

// Rect 轴对齐矩形障碍
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// hitsCircle 圆与矩形相交：取矩形上离圆心最近的点比较距离
func (r Rect) hitsCircle(x, y, radius float64) bool {
	cx := clamp(x, r.MinX, r.MaxX)
	cy := clamp(y, r.MinY, r.MaxY)
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy < radius*radius
}

// Arena 静态地图：边界墙加若干矩形障碍
type Arena struct {
	Width, Height float64
	Obstacles     []Rect
}

var _ Oracle = (*Arena)(nil)

const borderSize = 20

// DefaultArena 标准对战地图（y 轴向上）：四周 20 单位墙体与五个障碍
func DefaultArena(width, height float64) *Arena {
	a := &Arena{Width: width, Height: height}
	a.Obstacles = []Rect{
		{0, 0, borderSize, height},
		{width - borderSize, 0, width, height},
		{0, 0, width, borderSize},
		{0, height - borderSize, width, height},

		{100, 100, 200, 150},
		{350 - 70.7, 175 - 70.7, 350 + 70.7, 175 + 70.7},
		{500, 200, 600, 250},
		{250 - 56.56, 375 - 56.56, 250 + 56.56, 375 + 56.56},
		{440, 405, 560, 445},
	}
	return a
}

// OpenArena 只有边界、没有障碍的地图
func OpenArena(width, height float64) *Arena {
	return &Arena{Width: width, Height: height}
}

func (a *Arena) CanOccupy(x, y, radius float64) bool {
	if x-radius < 0 || y-radius < 0 || x+radius > a.Width || y+radius > a.Height {
		return false
	}
	for _, r := range a.Obstacles {
		if r.hitsCircle(x, y, radius) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

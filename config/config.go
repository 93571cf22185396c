package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Config 进程级配置。优先级：环境变量 > .env 文件 > 默认值；命令行参数在 main 中最后覆盖。
type Config struct {
	Port      int
	AdminAddr string
	Name      string

	LogFile  string
	LogLevel string

	TickInterval        time.Duration
	InputInterval       time.Duration
	PlayerStateInterval time.Duration
	ProjectileInterval  time.Duration
	PingInterval        time.Duration

	MapWidth       float64
	MapHeight      float64
	MaxConnections int
	OrphanPolicy   string

	Redis Redis
}

// Redis 为空 Addr 表示不发布对局事件
type Redis struct {
	Addr     string
	Password string
	Channel  string
}

func Default() Config {
	return Config{
		Port:                7777,
		Name:                "player",
		LogLevel:            "info",
		TickInterval:        16 * time.Millisecond,
		InputInterval:       16 * time.Millisecond,
		PlayerStateInterval: 33 * time.Millisecond,
		ProjectileInterval:  33 * time.Millisecond,
		PingInterval:        time.Second,
		MapWidth:            800,
		MapHeight:           600,
		MaxConnections:      32,
		OrphanPolicy:        "eliminate",
		Redis:               Redis{Channel: "arena-session"},
	}
}

// Load 读取 .env（不存在时忽略）与 ARENA_* 环境变量。
// 所有格式错误一次性返回，每条都指明变量名。
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	c := Default()
	var errs error
	str("ARENA_ADMIN_ADDR", &c.AdminAddr)
	str("ARENA_NAME", &c.Name)
	str("ARENA_LOG_FILE", &c.LogFile)
	str("ARENA_LOG_LEVEL", &c.LogLevel)
	str("ARENA_ORPHAN_POLICY", &c.OrphanPolicy)
	str("ARENA_REDIS_ADDR", &c.Redis.Addr)
	str("ARENA_REDIS_PASSWORD", &c.Redis.Password)
	str("ARENA_REDIS_CHANNEL", &c.Redis.Channel)

	errs = multierr.Combine(
		integer("ARENA_PORT", &c.Port, 0, 65535),
		integer("ARENA_MAX_CONNECTIONS", &c.MaxConnections, 1, 1<<16),
		duration("ARENA_TICK_INTERVAL", &c.TickInterval),
		duration("ARENA_INPUT_INTERVAL", &c.InputInterval),
		duration("ARENA_PLAYER_STATE_INTERVAL", &c.PlayerStateInterval),
		duration("ARENA_PROJECTILE_INTERVAL", &c.ProjectileInterval),
		duration("ARENA_PING_INTERVAL", &c.PingInterval),
		positive("ARENA_MAP_WIDTH", &c.MapWidth),
		positive("ARENA_MAP_HEIGHT", &c.MapHeight),
	)
	switch strings.ToLower(c.OrphanPolicy) {
	case "eliminate", "freeze":
	default:
		errs = multierr.Append(errs, fmt.Errorf("ARENA_ORPHAN_POLICY: unknown policy %q", c.OrphanPolicy))
	}
	return c, errs
}

func str(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = strings.TrimSpace(v)
	}
}

func integer(name string, dst *int, lo, hi int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if n < lo || n > hi {
		return fmt.Errorf("%s: %d out of range [%d, %d]", name, n, lo, hi)
	}
	*dst = n
	return nil
}

// duration 接受 Go 时长（"16ms"）或整数毫秒
func duration(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	d, err := time.ParseDuration(v)
	if err != nil {
		ms, aerr := strconv.Atoi(v)
		if aerr != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive, got %s", name, d)
	}
	*dst = d
	return nil
}

func positive(name string, dst *float64) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if f <= 0 {
		return fmt.Errorf("%s: must be positive, got %g", name, f)
	}
	*dst = f
	return nil
}

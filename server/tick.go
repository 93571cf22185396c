package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"arenanet/session"
)

var ErrRunnerBusy = errors.New("server: command queue full")

// Command 在 Tick 线程上执行的操作
type Command func(m *session.Manager) error

// Runner 单线程推进会话：每个间隔先执行排队的命令，再 Tick 一次。
// 其他协程只能通过 Submit/Do 改动会话。
type Runner struct {
	mgr      *session.Manager
	interval time.Duration
	cmds     chan func()
	log      *zap.SugaredLogger
}

func NewRunner(log *zap.SugaredLogger, mgr *session.Manager, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Runner{
		mgr:      mgr,
		interval: interval,
		cmds:     make(chan func(), 64),
		log:      log.Named("runner"),
	}
}

// Submit 排入下一帧执行，不等待结果；队列满时返回 ErrRunnerBusy
func (r *Runner) Submit(cmd Command) error {
	select {
	case r.cmds <- func() {
		if err := cmd(r.mgr); err != nil {
			r.log.Warnw("command failed", "error", err)
		}
	}:
		return nil
	default:
		return ErrRunnerBusy
	}
}

// Do 排入下一帧执行并等待结果
func (r *Runner) Do(ctx context.Context, cmd Command) error {
	done := make(chan error, 1)
	select {
	case r.cmds <- func() { done <- cmd(r.mgr) }:
	default:
		return ErrRunnerBusy
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 阻塞直到 ctx 取消。核心循环：命令 → Tick → 记录耗时
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Infow("tick loop started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("tick loop stopped")
			return nil
		case now := <-ticker.C:
			start := time.Now()
			r.drain()
			r.mgr.Tick(now)
			r.mgr.Metrics().AddTick(time.Since(start).Nanoseconds())
		}
	}
}

func (r *Runner) drain() {
	for {
		select {
		case fn := <-r.cmds:
			fn()
		default:
			return
		}
	}
}

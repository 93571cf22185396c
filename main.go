package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"arenanet/config"
	"arenanet/logx"
	"arenanet/match"
	"arenanet/publish"
	"arenanet/server"
	"arenanet/session"
	"arenanet/transport"
)

// arena 入口：standalone / 主机（-s）/ 参与者（-c [ip]），可选管理接口
func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	cli, err := parseFlags(&cfg, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		// flag 自身的解析错误已输出
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 2
	}

	log, err := logx.New(logx.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logx.Sync(log)

	var pub publish.Publisher = publish.Nop{}
	if cfg.Redis.Addr != "" {
		pub = publish.NewRedis(log, publish.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			Channel:  cfg.Redis.Channel,
		})
	}

	// 传输层多留一个名额，让超出上限的连接能收到 ServerReject 而不是直接被拒绝升级
	wsOpts := transport.WebSocketOptions{MaxPeers: cfg.MaxConnections + 1}
	mgr := session.NewManager(log, sessionOptions(cfg), func() transport.Transport {
		return transport.NewWebSocket(log, wsOpts)
	}, pub)

	switch {
	case cli.host:
		if err := mgr.StartHost(cfg.Port); err != nil {
			log.Errorw("continuing standalone", "error", err)
		}
	case cli.client:
		if err := mgr.Join(cli.addr, cfg.Port); err != nil {
			log.Errorw("continuing standalone", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := server.NewRunner(log, mgr, cfg.TickInterval)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return report(gctx, log, mgr) })

	if cfg.AdminAddr != "" {
		srv := &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           server.NewAdmin(log, runner, mgr).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Infof("admin listening on %s", cfg.AdminAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info("Shutting down...")
	// Tick 循环已退出，此后由主协程独占会话
	if serr := mgr.Shutdown(); serr != nil {
		log.Warnw("session shutdown", "error", serr)
	}
	if err != nil {
		log.Errorw("exited with error", "error", err)
		return 1
	}
	return 0
}

type cliArgs struct {
	host   bool
	client bool
	addr   string
}

var errUsage = errors.New("usage error")

// parseFlags 解析命令行并覆盖 cfg。flag 在第一个位置参数处停止，
// 所以 ip 之后的 flag 需要继续解析。
func parseFlags(cfg *config.Config, args []string) (cliArgs, error) {
	var cli cliArgs
	fs := flag.NewFlagSet("arena", flag.ContinueOnError)
	fs.BoolVar(&cli.host, "server", false, "host a session")
	fs.BoolVar(&cli.host, "s", false, "shorthand for -server")
	fs.BoolVar(&cli.client, "client", false, "join a host; the address is the positional argument (default 127.0.0.1)")
	fs.BoolVar(&cli.client, "c", false, "shorthand for -client")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "session port to listen on or connect to")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "display name sent to the host")
	fs.StringVar(&cfg.AdminAddr, "admin", cfg.AdminAddr, "admin HTTP listen address, e.g. :8080 (disabled when empty)")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file path (stderr when empty)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: arena [--server|-s] [--client|-c [ip]] [flags]\n")
		fs.PrintDefaults()
	}

	var positional []string
	for rest := args; ; {
		if err := fs.Parse(rest); err != nil {
			return cli, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	switch {
	case cli.host && cli.client:
		return cli, fmt.Errorf("%w: choose either --server or --client", errUsage)
	case len(positional) > 1:
		return cli, fmt.Errorf("%w: unexpected arguments %v", errUsage, positional[1:])
	case len(positional) == 1 && !cli.client:
		return cli, fmt.Errorf("%w: address %q needs --client", errUsage, positional[0])
	}
	cli.addr = "127.0.0.1"
	if len(positional) == 1 {
		cli.addr = positional[0]
	}
	return cli, nil
}

func sessionOptions(cfg config.Config) session.Options {
	o := session.DefaultOptions()
	o.Name = cfg.Name
	o.MaxConnections = cfg.MaxConnections
	o.InputInterval = cfg.InputInterval
	o.PlayerStateInterval = cfg.PlayerStateInterval
	o.ProjectileInterval = cfg.ProjectileInterval
	o.PingInterval = cfg.PingInterval
	o.Match.Width = cfg.MapWidth
	o.Match.Height = cfg.MapHeight
	o.Match.TickInterval = cfg.TickInterval
	o.Oracle = match.DefaultArena(cfg.MapWidth, cfg.MapHeight)
	// config.Load 已校验
	o.Orphan, _ = session.ParseOrphanPolicy(cfg.OrphanPolicy)
	return o
}

// report 无界面运行时定期输出会话快照
func report(ctx context.Context, log *zap.SugaredLogger, mgr *session.Manager) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := mgr.Status()
			fields := []any{"role", st.Role, "local", st.LocalID, "tick", st.Tick, "connections", st.Connections}
			if st.Room != nil {
				fields = append(fields, "room", st.Room.ID, "roomStatus", st.Room.Status)
			}
			if st.Match != nil {
				fields = append(fields, "match", st.Match.MatchID, "matchState", st.Match.State, "players", len(st.Match.Players))
			}
			if st.LastError != "" {
				fields = append(fields, "lastError", st.LastError)
			}
			log.Infow("status", fields...)
		}
	}
}

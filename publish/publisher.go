package publish

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TypeMatchStarted = "MatchStarted"
	TypeMatchEnded   = "MatchEnded"

	DefaultChannel = "arena-session"
)

// Event 发布到消息通道的统一外层结构
type Event struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

type MatchStarted struct {
	MatchID      int32     `json:"matchId"`
	RoomID       int32     `json:"roomId"`
	Participants []int32   `json:"participants"`
	At           time.Time `json:"at"`
}

type MatchEnded struct {
	MatchID int32     `json:"matchId"`
	RoomID  int32     `json:"roomId"`
	Winner  int32     `json:"winner"`
	At      time.Time `json:"at"`
}

// Publisher 对局生命周期通知；Publish 不得阻塞 Tick 线程
type Publisher interface {
	Publish(ev Event)
	Close() error
}

// Nop 未配置 Redis 时使用
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close() error  { return nil }

// broker 是 *redis.Client 中用到的部分
type broker interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

type RedisOptions struct {
	Addr     string
	Password string
	Channel  string
	Queue    int
	Timeout  time.Duration
}

// Redis 通过后台协程把事件以 JSON 发布到 Redis 频道；队列满时丢弃
type Redis struct {
	broker  broker
	channel string
	timeout time.Duration
	log     *zap.SugaredLogger

	queue     chan Event
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewRedis(log *zap.SugaredLogger, opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       0,
	})
	return newRedis(log, client, opts)
}

func newRedis(log *zap.SugaredLogger, b broker, opts RedisOptions) *Redis {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	r := &Redis{
		broker:  b,
		channel: opts.Channel,
		timeout: opts.Timeout,
		log:     log.Named("publish"),
		queue:   make(chan Event, opts.Queue),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Redis) Publish(ev Event) {
	if r.closed.Load() {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.log.Warnw("publish queue full, event dropped", "type", ev.Type)
	}
}

func (r *Redis) run() {
	defer close(r.done)
	for ev := range r.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			r.log.Errorw("could not encode event", "type", ev.Type, "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err = r.broker.Publish(ctx, r.channel, string(payload)).Err()
		cancel()
		if err != nil {
			r.log.Errorw("could not publish message", "channel", r.channel, "message", string(payload), "error", err)
		}
	}
}

// Close 发送完已排队的事件后关闭连接
func (r *Redis) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.queue)
	})
	<-r.done
	return r.broker.Close()
}

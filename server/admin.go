package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"arenanet/lobby"
	"arenanet/session"
)

// Admin 管理与监控接口。读取走 Manager.Status（任意协程安全），
// 修改一律通过 Runner 排入 Tick 线程。
type Admin struct {
	runner *Runner
	mgr    *session.Manager
	log    *zap.SugaredLogger
}

func NewAdmin(log *zap.SugaredLogger, runner *Runner, mgr *session.Manager) *Admin {
	return &Admin{runner: runner, mgr: mgr, log: log.Named("admin")}
}

// Router GET /healthz /metrics /session /rooms /config，POST /config /rooms /match
func (a *Admin) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Get("/healthz", a.healthz)
	r.Get("/metrics", a.metrics)
	r.Get("/session", a.session)
	r.Get("/rooms", a.rooms)
	r.Post("/rooms", a.createRoom)
	r.Post("/match", a.startMatch)
	r.Get("/config", a.getConfig)
	r.Post("/config", a.postConfig)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func (a *Admin) healthz(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// metrics 输出会话运行指标
func (a *Admin) metrics(w http.ResponseWriter, _ *http.Request) {
	st := a.mgr.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"role":    st.Role,
		"tick":    st.Tick,
		"metrics": a.mgr.Metrics().Snapshot(),
	})
}

func (a *Admin) session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.mgr.Status())
}

func (a *Admin) rooms(w http.ResponseWriter, _ *http.Request) {
	rooms := a.mgr.Status().Rooms
	if rooms == nil {
		rooms = []lobby.Summary{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

type createRoomBody struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// createRoom 以本地玩家身份建房（无界面的主机用它来组织对局）
func (a *Admin) createRoom(w http.ResponseWriter, r *http.Request) {
	var body createRoomBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	err := a.runner.Do(r.Context(), func(m *session.Manager) error {
		return m.CreateRoom(body.Name, body.Capacity)
	})
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (a *Admin) startMatch(w http.ResponseWriter, r *http.Request) {
	err := a.runner.Do(r.Context(), func(m *session.Manager) error { return m.StartMatch() })
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrRunnerBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, lobby.ErrRoomNotFound), errors.Is(err, session.ErrNoRoom):
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

// configBody 毫秒为单位；缺省字段保持不变
type configBody struct {
	InputIntervalMs       *int   `json:"inputIntervalMs,omitempty"`
	PlayerStateIntervalMs *int   `json:"playerStateIntervalMs,omitempty"`
	ProjectileIntervalMs  *int   `json:"projectileIntervalMs,omitempty"`
	PingIntervalMs        *int   `json:"pingIntervalMs,omitempty"`
	OrphanPolicy          string `json:"orphanPolicy,omitempty"`
}

func cadenceBody(c session.Cadence, orphan session.OrphanPolicy) configBody {
	ms := func(d time.Duration) *int {
		v := int(d / time.Millisecond)
		return &v
	}
	return configBody{
		InputIntervalMs:       ms(c.InputInterval),
		PlayerStateIntervalMs: ms(c.PlayerStateInterval),
		ProjectileIntervalMs:  ms(c.ProjectileInterval),
		PingIntervalMs:        ms(c.PingInterval),
		OrphanPolicy:          orphan.String(),
	}
}

func (a *Admin) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, cadenceBody(a.mgr.Status().Cadence, a.mgr.Status().Orphan))
}

// postConfig 热更新同步节奏
func (a *Admin) postConfig(w http.ResponseWriter, r *http.Request) {
	var body configBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	var c session.Cadence
	for _, f := range []struct {
		v   *int
		dst *time.Duration
	}{
		{body.InputIntervalMs, &c.InputInterval},
		{body.PlayerStateIntervalMs, &c.PlayerStateInterval},
		{body.ProjectileIntervalMs, &c.ProjectileInterval},
		{body.PingIntervalMs, &c.PingInterval},
	} {
		if f.v == nil {
			continue
		}
		if *f.v <= 0 {
			http.Error(w, "intervals must be positive", http.StatusBadRequest)
			return
		}
		*f.dst = time.Duration(*f.v) * time.Millisecond
	}
	var orphan *session.OrphanPolicy
	if body.OrphanPolicy != "" {
		p, err := session.ParseOrphanPolicy(body.OrphanPolicy)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		orphan = &p
	}

	var applied configBody
	err := a.runner.Do(r.Context(), func(m *session.Manager) error {
		m.SetCadence(c)
		if orphan != nil {
			m.SetOrphanPolicy(*orphan)
		}
		applied = cadenceBody(m.Cadence(), m.Options().Orphan)
		return nil
	})
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	a.log.Infow("config updated", "config", applied)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": applied})
}

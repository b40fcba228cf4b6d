package netsync

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"miniplaza/proto"
)

// SessionState 连接生命周期
// Disconnected →(连上)→ Joining（发 join + 请求全量名册）→(首份名册到达)→ Synced
// 断线回到 Disconnected：定时器全停、临时状态清空，本地状态保留以便快速重入
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateJoining
	StateSynced
)

func (s SessionState) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateSynced:
		return "synced"
	default:
		return "disconnected"
	}
}

// Emitter 出站网络抽象，由具体传输实现；实现必须不阻塞调用方
type Emitter interface {
	EmitJoin(st proto.PlayerState) error
	EmitMove(mv proto.MovePayload) error
	EmitRequestPlayers() error
	EmitEmoji(id, emoji string) error
	EmitColor(id, color string) error
}

// Session 同步核心的装配点：状态存储、差量编码、限流、对账、插值、重同步
// 全部依赖走构造注入，不碰任何包级全局
type Session struct {
	store    *Store
	encoder  *DeltaEncoder
	throttle *Throttle
	interp   *Interpolator
	emoji    *EmojiTracker
	recon    *Reconciler
	resync   *ResyncCoordinator
	emitter  Emitter
	log      *zap.SugaredLogger

	state atomic.Int32
	seq   atomic.Uint64

	mu         sync.Mutex
	interpStop chan struct{}
}

func NewSession(emitter Emitter, log *zap.SugaredLogger) *Session {
	s := &Session{emitter: emitter, log: log}
	s.store = NewStore()
	s.encoder = NewDeltaEncoder()
	s.throttle = NewThrottle(SendInterval)
	s.interp = NewInterpolator(s.store)
	s.emoji = NewEmojiTracker(EmojiTTL)
	s.resync = NewResyncCoordinator(func() {
		if err := emitter.EmitRequestPlayers(); err != nil {
			log.Debugw("session: request-players failed", "err", err)
		}
	}, ResyncInterval)
	s.recon = NewReconciler(s.store, s.interp, s.emoji, s.resync.Nudge, log)
	return s
}

// Store 暴露状态存储给嵌入方（渲染层读名册用）
func (s *Session) Store() *Store { return s.store }

// Emojis 暴露表情跟踪器（渲染浮层用）
func (s *Session) Emojis() *EmojiTracker { return s.emoji }

// State 当前连接状态
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// HandleConnected 连接建立（或重连）：记下服务端分配的会话 id，
// 宣告自己加入，立即请求全量名册，启动插值与重同步循环
func (s *Session) HandleConnected(id PlayerID) {
	s.store.SetLocalID(id)
	s.store.UpdateLocal(func(st *proto.PlayerState) {})
	s.state.Store(int32(StateJoining))

	local, _ := s.store.Local()
	if err := s.emitter.EmitJoin(local); err != nil {
		s.log.Debugw("session: join emit failed", "err", err)
	}
	s.resync.Start()
	s.startInterp()
	s.log.Infow("session: joining", "id", id)
}

// HandleDisconnected 断线：停掉所有定时器，清空差量基线/限流窗口/
// 插值目标/表情/序列号记账——重连后绝不能用旧闭包里的陈旧状态干活
// 本地玩家状态保留，重入时直接带着走
func (s *Session) HandleDisconnected() {
	s.state.Store(int32(StateDisconnected))
	s.resync.Stop()
	s.stopInterp()
	s.throttle.Reset()
	s.encoder.Reset()
	s.interp.Reset()
	s.emoji.Reset()
	s.recon.Reset()
	s.log.Infow("session: disconnected")
}

// HandleMessage 入站分发：welcome 驱动状态机，其余交给对账层
func (s *Session) HandleMessage(msg *proto.Message, now time.Time) {
	if msg == nil {
		return
	}
	if msg.Type == proto.TypeWelcome {
		if msg.Welcome != nil {
			s.HandleConnected(PlayerID(msg.Welcome.ID))
		}
		return
	}
	accepted := s.recon.Apply(msg, now)
	if accepted && msg.Type == proto.TypePlayers &&
		s.State() == StateJoining {
		s.state.Store(int32(StateSynced))
		s.log.Infow("session: synced", "players", s.store.Len())
	}
}

// PublishLocal 本地输入路径：状态存储更新 → 差量编码 → 限流 → 网络发出
// 连接 id 还没分配时整条路径是无操作（只更新本地显示状态）
func (s *Session) PublishLocal(pos proto.Vec3, rot float64, anim string, now time.Time) {
	s.store.UpdateLocal(func(st *proto.PlayerState) {
		st.Position = pos
		st.Rotation = rot
		if anim != "" {
			st.Animation = anim
		}
	})
	s.maybeSend(now)
}

// SetLocalFlag 本地布尔开关（配饰等），与位置走同一条发送路径
func (s *Session) SetLocalFlag(name string, on bool, now time.Time) {
	s.store.UpdateLocal(func(st *proto.PlayerState) {
		if st.Flags == nil {
			st.Flags = make(map[string]bool, 1)
		}
		st.Flags[name] = on
	})
	s.maybeSend(now)
}

// SetLocalColor 显式换色：本地即时生效，并走专用 color 事件广播
func (s *Session) SetLocalColor(color string) {
	s.store.UpdateLocal(func(st *proto.PlayerState) {
		st.Color = color
	})
	id := s.store.LocalID()
	if id == "" {
		return
	}
	if err := s.emitter.EmitColor(string(id), color); err != nil {
		s.log.Debugw("session: color emit failed", "err", err)
	}
}

// SendEmoji 发一条临时表情，本地同样挂 3 秒
func (s *Session) SendEmoji(emoji string, now time.Time) {
	id := s.store.LocalID()
	if id == "" {
		return
	}
	s.emoji.Set(id, emoji, now)
	if err := s.emitter.EmitEmoji(string(id), emoji); err != nil {
		s.log.Debugw("session: emoji emit failed", "err", err)
	}
}

// maybeSend 出站判定：先编差量（没变化就完事），再过限流窗口，
// 发送被传输层收下后才提交基线——丢掉的消息不得推进基线
func (s *Session) maybeSend(now time.Time) {
	id := s.store.LocalID()
	if id == "" {
		return
	}
	local, ok := s.store.Local()
	if !ok {
		return
	}
	mv := s.encoder.Encode(local)
	if mv == nil {
		return
	}
	if !s.throttle.Allow(id, now) {
		return
	}
	mv.Seq = s.seq.Add(1)
	if err := s.emitter.EmitMove(*mv); err != nil {
		s.log.Debugw("session: move emit failed", "err", err)
		return
	}
	s.encoder.Commit(local)
}

func (s *Session) startInterp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interpStop != nil {
		return
	}
	stop := make(chan struct{})
	s.interpStop = stop
	go func() {
		ticker := time.NewTicker(InterpTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				s.interp.Tick(now)
			}
		}
	}()
}

func (s *Session) stopInterp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interpStop == nil {
		return
	}
	close(s.interpStop)
	s.interpStop = nil
}

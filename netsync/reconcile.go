package netsync

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"miniplaza/proto"
)

// Reconciler 入站对账：把服务端推来的全量/增量快照合并进状态存储
// 畸形消息静默丢弃（只记调试日志），引用未知 id 的移动视为重同步信号，
// 任何一帧坏数据都不该弄崩整个会话
type Reconciler struct {
	store  *Store
	interp *Interpolator
	emoji  *EmojiTracker
	resync func()
	log    *zap.SugaredLogger

	mu   sync.Mutex
	seqs map[PlayerID]uint64
}

func NewReconciler(store *Store, interp *Interpolator, emoji *EmojiTracker, resync func(), log *zap.SugaredLogger) *Reconciler {
	if resync == nil {
		resync = func() {}
	}
	return &Reconciler{
		store:  store,
		interp: interp,
		emoji:  emoji,
		resync: resync,
		log:    log,
		seqs:   make(map[PlayerID]uint64),
	}
}

// Apply 按消息类型分发；返回值表示消息是否被采纳（丢弃也不算错误）
func (r *Reconciler) Apply(msg *proto.Message, now time.Time) bool {
	if msg == nil {
		return false
	}
	switch msg.Type {
	case proto.TypePlayers:
		return r.applyRoster(msg.Players)
	case proto.TypePlayerJoined:
		return r.applyJoined(msg.Join)
	case proto.TypePlayerMoved:
		return r.applyMoved(msg.Move, now)
	case proto.TypePlayerLeft:
		return r.applyLeft(msg.Left)
	case proto.TypePlayerEmoji:
		return r.applyEmoji(msg.Emoji, now)
	case proto.TypePlayerEmojiRemoved:
		if msg.Emoji == nil {
			return false
		}
		r.emoji.Clear(PlayerID(msg.Emoji.ID))
		return true
	default:
		r.log.Debugw("reconciler: dropped message", "type", msg.Type)
		return false
	}
}

// applyRoster 全量名册替换：整体采纳，但本地权威字段回填由 Store 保证；
// 全量快照压过同一拍早先暂存的任何增量，插值目标一并作废
func (r *Reconciler) applyRoster(roster map[string]proto.PlayerState) bool {
	if roster == nil {
		r.log.Debugw("reconciler: nil roster dropped")
		return false
	}
	r.store.ReplaceAll(roster)
	r.interp.Reset()
	r.mu.Lock()
	for id := range r.seqs {
		if _, ok := roster[string(id)]; !ok {
			delete(r.seqs, id)
		}
	}
	r.mu.Unlock()
	return true
}

// applyJoined 增量加入：跳过自己（服务端回显）与重复通知
func (r *Reconciler) applyJoined(st *proto.PlayerState) bool {
	if st == nil || st.ID == "" {
		return false
	}
	id := PlayerID(st.ID)
	if id == r.store.LocalID() || r.store.Has(id) {
		return false
	}
	r.store.Put(*st)
	return true
}

// applyMoved 增量移动：只合并消息里出现的字段
// 位置/朝向进插值暂存而非直写显示值；动画不插值，立即生效
// 未知 id 说明错过了 join（乱序竞态），发重同步请求自愈，不凭这条消息建条目
func (r *Reconciler) applyMoved(mv *proto.MovePayload, now time.Time) bool {
	if mv == nil || mv.ID == "" {
		return false
	}
	id := PlayerID(mv.ID)
	if id == r.store.LocalID() {
		return false
	}
	if !r.store.Has(id) {
		r.log.Debugw("reconciler: move for unknown id, requesting resync", "id", mv.ID)
		r.resync()
		return false
	}
	if mv.Seq != 0 {
		r.mu.Lock()
		if last, ok := r.seqs[id]; ok && mv.Seq <= last {
			r.mu.Unlock()
			r.log.Debugw("reconciler: stale seq dropped", "id", mv.ID, "seq", mv.Seq, "last", last)
			return false
		}
		r.seqs[id] = mv.Seq
		r.mu.Unlock()
	}

	immediate := *mv
	immediate.Position = nil
	immediate.Rotation = nil
	r.store.Merge(id, immediate)
	r.interp.SetTarget(id, mv.Position, mv.Rotation, now)
	return true
}

// applyLeft 离开：状态条目、插值目标、挂着的表情在同一步内一起移除
func (r *Reconciler) applyLeft(p *proto.LeftPayload) bool {
	if p == nil || p.ID == "" {
		return false
	}
	id := PlayerID(p.ID)
	removed := r.store.Remove(id)
	r.interp.Drop(id)
	r.emoji.Clear(id)
	r.mu.Lock()
	delete(r.seqs, id)
	r.mu.Unlock()
	return removed
}

func (r *Reconciler) applyEmoji(p *proto.EmojiPayload, now time.Time) bool {
	if p == nil || p.ID == "" {
		return false
	}
	r.emoji.Set(PlayerID(p.ID), p.Emoji, now)
	return true
}

// Reset 断开连接时清空序列号记账
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = make(map[PlayerID]uint64)
}

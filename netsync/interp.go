package netsync

import (
	"sync"
	"time"

	"miniplaza/proto"
)

const (
	// InterpTickInterval 插值节拍 60Hz，与渲染/广播节奏解耦
	InterpTickInterval = time.Second / 60
	// interpRefPeriod 插值系数的参考周期：距上次网络更新的耗时除以它
	interpRefPeriod = 100 * time.Millisecond
	// interpMaxFactor 单次 Tick 最多走剩余距离的两成，保证静止目标永不过冲
	interpMaxFactor = 0.2
	// interpSnapEpsilon 距目标足够近时直接贴上，避免无限逼近
	interpSnapEpsilon = 1e-4
)

// interpTarget 远端玩家的插值目标：最近一次收到的权威位置/朝向及其到达时刻
type interpTarget struct {
	pos       proto.Vec3
	rot       float64
	hasPos    bool
	hasRot    bool
	updatedAt time.Time
}

// Interpolator 固定节拍推进每个远端玩家的显示位置/朝向逼近目标，
// 吸收 20Hz 节流网络节奏带来的抖动
type Interpolator struct {
	mu      sync.Mutex
	store   *Store
	targets map[PlayerID]*interpTarget
}

func NewInterpolator(store *Store) *Interpolator {
	return &Interpolator{store: store, targets: make(map[PlayerID]*interpTarget)}
}

// SetTarget 暂存一次网络更新（pos/rot 允许只来其一），重置更新时钟
func (ip *Interpolator) SetTarget(id PlayerID, pos *proto.Vec3, rot *float64, now time.Time) {
	if pos == nil && rot == nil {
		return
	}
	ip.mu.Lock()
	defer ip.mu.Unlock()
	tgt, ok := ip.targets[id]
	if !ok {
		tgt = &interpTarget{}
		ip.targets[id] = tgt
	}
	if pos != nil {
		tgt.pos = *pos
		tgt.hasPos = true
	}
	if rot != nil {
		tgt.rot = NormalizeAngle(*rot)
		tgt.hasRot = true
	}
	tgt.updatedAt = now
}

// Drop 玩家离开时与状态条目同一步清掉插值目标，绝不给缺席者做插值
func (ip *Interpolator) Drop(id PlayerID) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	delete(ip.targets, id)
}

// Reset 清空全部目标（断线或全量名册替换时）
func (ip *Interpolator) Reset() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.targets = make(map[PlayerID]*interpTarget)
}

// Has 是否存在该 id 的未完成目标
func (ip *Interpolator) Has(id PlayerID) bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	_, ok := ip.targets[id]
	return ok
}

// Tick 单步插值：系数 = clamp(距上次更新耗时 / 100ms, 0, 0.2)，
// 显示值向目标移动剩余距离的该比例；朝向走归一化后的最短路径
func (ip *Interpolator) Tick(now time.Time) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	for id, tgt := range ip.targets {
		cur, ok := ip.store.Get(id)
		if !ok {
			// 条目没了目标也该没：防御性清理
			delete(ip.targets, id)
			continue
		}
		factor := float64(now.Sub(tgt.updatedAt)) / float64(interpRefPeriod)
		if factor < 0 {
			factor = 0
		}
		if factor > interpMaxFactor {
			factor = interpMaxFactor
		}

		var newPos *proto.Vec3
		if tgt.hasPos {
			pos := cur.Position
			done := true
			for i := range pos {
				d := tgt.pos[i] - pos[i]
				if d > interpSnapEpsilon || d < -interpSnapEpsilon {
					done = false
				}
				pos[i] += d * factor
			}
			if done {
				pos = tgt.pos
			}
			newPos = &pos
		}
		var newRot *float64
		if tgt.hasRot {
			d := AngleDelta(cur.Rotation, tgt.rot)
			rot := cur.Rotation
			if d > interpSnapEpsilon || d < -interpSnapEpsilon {
				rot = NormalizeAngle(rot + d*factor)
			} else {
				rot = tgt.rot
			}
			newRot = &rot
		}
		ip.store.SetDisplayed(id, newPos, newRot)
	}
}

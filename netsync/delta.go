package netsync

import (
	"math"
	"sync"

	"miniplaza/proto"
)

// 出站阈值：任一坐标轴超过 0.01、朝向超过 0.05 弧度才算"动了"；
// 动画/颜色/开关要求严格相等，任何变化都发
const (
	PositionEpsilon = 0.01
	RotationEpsilon = 0.05
)

// DeltaEncoder 对比当前状态与"上次成功发送"的基线，只编码出阈值的字段
// 基线必须在发送成功之后由调用方 Commit，发送失败不得推进基线，
// 否则一条丢掉的消息会悄悄吞掉后续的差异
type DeltaEncoder struct {
	mu       sync.Mutex
	lastSent map[PlayerID]proto.PlayerState
}

func NewDeltaEncoder() *DeltaEncoder {
	return &DeltaEncoder{lastSent: make(map[PlayerID]proto.PlayerState)}
}

// Encode 计算最小差量；没有任何字段出阈值时返回 nil
// 该 id 没有基线时返回全量（没有东西可比）
func (e *DeltaEncoder) Encode(cur proto.PlayerState) *proto.MovePayload {
	e.mu.Lock()
	prev, ok := e.lastSent[PlayerID(cur.ID)]
	e.mu.Unlock()
	if !ok {
		pos := cur.Position
		rot := cur.Rotation
		anim := cur.Animation
		color := cur.Color
		return &proto.MovePayload{
			ID:        cur.ID,
			Position:  &pos,
			Rotation:  &rot,
			Animation: &anim,
			Color:     &color,
			Flags:     cloneFlags(cur.Flags),
		}
	}

	mv := &proto.MovePayload{ID: cur.ID}
	changed := false
	if positionChanged(prev.Position, cur.Position) {
		pos := cur.Position
		mv.Position = &pos
		changed = true
	}
	if math.Abs(AngleDelta(prev.Rotation, cur.Rotation)) > RotationEpsilon {
		rot := cur.Rotation
		mv.Rotation = &rot
		changed = true
	}
	if prev.Animation != cur.Animation {
		anim := cur.Animation
		mv.Animation = &anim
		changed = true
	}
	if prev.Color != cur.Color {
		color := cur.Color
		mv.Color = &color
		changed = true
	}
	if !flagsEqual(prev.Flags, cur.Flags) {
		mv.Flags = cloneFlags(cur.Flags)
		changed = true
	}
	if !changed {
		return nil
	}
	return mv
}

// Commit 发送成功后推进基线（记录完整新状态，而非差量）
func (e *DeltaEncoder) Commit(st proto.PlayerState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSent[PlayerID(st.ID)] = cloneState(st)
}

// Forget 丢弃单个 id 的基线
func (e *DeltaEncoder) Forget(id PlayerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lastSent, id)
}

// Reset 断开连接时清空所有基线
func (e *DeltaEncoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSent = make(map[PlayerID]proto.PlayerState)
}

func positionChanged(a, b proto.Vec3) bool {
	for i := range a {
		if math.Abs(b[i]-a[i]) > PositionEpsilon {
			return true
		}
	}
	return false
}

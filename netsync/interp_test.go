package netsync

import (
	"math"
	"testing"
	"time"

	"miniplaza/proto"
)

func newRemoteStore(t *testing.T, id string, pos proto.Vec3, rot float64) *Store {
	t.Helper()
	s := NewStore()
	s.SetLocalID("local")
	s.Put(proto.PlayerState{ID: "local"})
	s.Put(proto.PlayerState{ID: id, Position: pos, Rotation: rot})
	return s
}

func TestInterpConvergesWithoutOvershoot(t *testing.T) {
	store := newRemoteStore(t, "r1", proto.Vec3{0, 0, 0}, 0)
	ip := NewInterpolator(store)

	target := proto.Vec3{10, 0, -4}
	now := time.Now()
	ip.SetTarget("r1", &target, nil, now)

	prevDist := math.Inf(1)
	// 60Hz 推 600 拍（10 秒），必须收敛且单调不过冲
	for i := 0; i < 600; i++ {
		now = now.Add(InterpTickInterval)
		ip.Tick(now)
		st, _ := store.Get("r1")
		d := math.Hypot(target[0]-st.Position[0], target[2]-st.Position[2])
		if d > prevDist+1e-9 {
			t.Fatalf("tick %d: distance grew %v -> %v (overshoot)", i, prevDist, d)
		}
		prevDist = d
	}
	st, _ := store.Get("r1")
	for i := range target {
		if math.Abs(st.Position[i]-target[i]) > 0.01 {
			t.Fatalf("axis %d not converged: %v vs %v", i, st.Position[i], target[i])
		}
	}
}

func TestInterpRotationTakesShortestPath(t *testing.T) {
	// 从 +3.0 到 -3.0：最短路径跨 π 缝，而不是绕 6 弧度长路
	store := newRemoteStore(t, "r1", proto.Vec3{}, 3.0)
	ip := NewInterpolator(store)

	rot := -3.0
	now := time.Now()
	ip.SetTarget("r1", nil, &rot, now)

	now = now.Add(InterpTickInterval)
	ip.Tick(now)
	st, _ := store.Get("r1")
	if st.Rotation <= 3.0 && st.Rotation >= -3.0 {
		t.Fatalf("rotation %v moved the long way", st.Rotation)
	}

	for i := 0; i < 600; i++ {
		now = now.Add(InterpTickInterval)
		ip.Tick(now)
	}
	st, _ = store.Get("r1")
	if math.Abs(AngleDelta(st.Rotation, rot)) > 0.01 {
		t.Fatalf("rotation not converged: %v vs %v", st.Rotation, rot)
	}
}

func TestInterpFactorClamped(t *testing.T) {
	// 距上次更新很久（系数封顶 0.2）：一拍也只能走剩余距离的两成
	store := newRemoteStore(t, "r1", proto.Vec3{0, 0, 0}, 0)
	ip := NewInterpolator(store)

	target := proto.Vec3{10, 0, 0}
	base := time.Now()
	ip.SetTarget("r1", &target, nil, base)

	ip.Tick(base.Add(5 * time.Second))
	st, _ := store.Get("r1")
	if math.Abs(st.Position[0]-2.0) > 1e-9 {
		t.Fatalf("clamped step moved to %v, want 2.0", st.Position[0])
	}
}

func TestInterpNoTargetIsNoop(t *testing.T) {
	store := newRemoteStore(t, "r1", proto.Vec3{1, 2, 3}, 0.5)
	ip := NewInterpolator(store)
	ip.Tick(time.Now())
	st, _ := store.Get("r1")
	if st.Position != (proto.Vec3{1, 2, 3}) || st.Rotation != 0.5 {
		t.Fatalf("player without target was touched: %+v", st)
	}
}

func TestInterpDropRemovesPendingWork(t *testing.T) {
	store := newRemoteStore(t, "r1", proto.Vec3{}, 0)
	ip := NewInterpolator(store)
	target := proto.Vec3{5, 0, 0}
	ip.SetTarget("r1", &target, nil, time.Now())
	ip.Drop("r1")
	if ip.Has("r1") {
		t.Fatal("target survived Drop")
	}
}

func TestInterpSelfHealsWhenEntryGone(t *testing.T) {
	store := newRemoteStore(t, "r1", proto.Vec3{}, 0)
	ip := NewInterpolator(store)
	target := proto.Vec3{5, 0, 0}
	ip.SetTarget("r1", &target, nil, time.Now())
	store.Remove("r1")
	ip.Tick(time.Now().Add(InterpTickInterval))
	if ip.Has("r1") {
		t.Fatal("dangling target kept after entry removal")
	}
}

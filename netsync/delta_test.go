package netsync

import (
	"testing"

	"miniplaza/proto"
)

func baseState() proto.PlayerState {
	return proto.PlayerState{
		ID:        "p1",
		Position:  proto.Vec3{0, 0, 0},
		Rotation:  0,
		Animation: "idle",
		Color:     "#ff0000",
	}
}

func TestDeltaFirstEncodeReturnsFullState(t *testing.T) {
	e := NewDeltaEncoder()
	mv := e.Encode(baseState())
	if mv == nil {
		t.Fatal("first encode must return full state, got nil")
	}
	if mv.ID != "p1" {
		t.Fatalf("id = %q, want p1", mv.ID)
	}
	if mv.Position == nil || mv.Rotation == nil || mv.Animation == nil || mv.Color == nil {
		t.Fatalf("first encode missing fields: %+v", mv)
	}
}

func TestDeltaPositionThreshold(t *testing.T) {
	e := NewDeltaEncoder()
	st := baseState()
	e.Commit(st)

	// 任一轴超过 0.01 才算动了
	st.Position = proto.Vec3{0.005, 0, 0.009}
	if mv := e.Encode(st); mv != nil {
		t.Fatalf("sub-threshold move emitted %+v", mv)
	}

	st.Position = proto.Vec3{0, 0, 1}
	mv := e.Encode(st)
	if mv == nil || mv.Position == nil {
		t.Fatal("expected position delta")
	}
	if *mv.Position != (proto.Vec3{0, 0, 1}) {
		t.Fatalf("position = %v", *mv.Position)
	}
	if mv.Rotation != nil || mv.Animation != nil || mv.Color != nil {
		t.Fatalf("unchanged fields leaked into delta: %+v", mv)
	}
}

func TestDeltaSecondIdenticalCallEmitsNothing(t *testing.T) {
	e := NewDeltaEncoder()
	st := baseState()
	e.Commit(st)

	st.Position = proto.Vec3{0, 0, 1}
	if mv := e.Encode(st); mv == nil {
		t.Fatal("expected delta for 1-unit move")
	}
	e.Commit(st)

	if mv := e.Encode(st); mv != nil {
		t.Fatalf("no further movement but got %+v", mv)
	}
}

func TestDeltaRotationThresholdUsesShortestPath(t *testing.T) {
	e := NewDeltaEncoder()
	st := baseState()
	st.Rotation = 3.10
	e.Commit(st)

	// 跨 π 的小角差不应触发
	st.Rotation = NormalizeAngle(3.13)
	if mv := e.Encode(st); mv != nil {
		t.Fatalf("0.03 rad across the seam emitted %+v", mv)
	}

	st.Rotation = NormalizeAngle(3.10 + 0.06)
	mv := e.Encode(st)
	if mv == nil || mv.Rotation == nil {
		t.Fatal("expected rotation delta for 0.06 rad")
	}
}

func TestDeltaAnimationAndColorExactMatch(t *testing.T) {
	e := NewDeltaEncoder()
	st := baseState()
	e.Commit(st)

	st.Animation = "walk"
	mv := e.Encode(st)
	if mv == nil || mv.Animation == nil || *mv.Animation != "walk" {
		t.Fatalf("animation change not emitted: %+v", mv)
	}
	e.Commit(st)

	st.Color = "#00ff00"
	mv = e.Encode(st)
	if mv == nil || mv.Color == nil || *mv.Color != "#00ff00" {
		t.Fatalf("color change not emitted: %+v", mv)
	}
}

func TestDeltaFlagsChange(t *testing.T) {
	e := NewDeltaEncoder()
	st := baseState()
	e.Commit(st)

	st.Flags = map[string]bool{"hat": true}
	mv := e.Encode(st)
	if mv == nil || !mv.Flags["hat"] {
		t.Fatalf("flag change not emitted: %+v", mv)
	}
	e.Commit(st)

	// 显式 false 与缺失等价，不触发
	st.Flags = map[string]bool{"hat": true, "cape": false}
	if mv := e.Encode(st); mv != nil {
		t.Fatalf("false flag equal to absent but got %+v", mv)
	}
}

func TestDeltaCommitOnlyAfterSend(t *testing.T) {
	e := NewDeltaEncoder()
	st := baseState()
	e.Commit(st)

	// 模拟发送失败：不 Commit，基线不动，差异保留到下次
	st.Position = proto.Vec3{0, 0, 1}
	if mv := e.Encode(st); mv == nil {
		t.Fatal("expected delta")
	}
	if mv := e.Encode(st); mv == nil || mv.Position == nil {
		t.Fatal("uncommitted baseline must keep reporting the diff")
	}
}

func TestDeltaResetForcesFullResend(t *testing.T) {
	e := NewDeltaEncoder()
	st := baseState()
	e.Commit(st)
	e.Reset()
	mv := e.Encode(st)
	if mv == nil || mv.Position == nil || mv.Color == nil {
		t.Fatalf("post-reset encode must be full, got %+v", mv)
	}
}

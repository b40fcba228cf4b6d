package netsync

import (
	"math"

	"miniplaza/proto"
)

// PlayerID 服务端分配的会话标识，连接存续期内不变
type PlayerID string

// DefaultAnimation 动画字段缺失时的缺省值
const DefaultAnimation = "idle"

// NormalizeAngle 将角度归一化到 (-π, π]，保证最短路径插值定义良好
func NormalizeAngle(a float64) float64 {
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// AngleDelta 从 from 到 to 的最短带符号角差
func AngleDelta(from, to float64) float64 {
	return NormalizeAngle(to - from)
}

// sanitize 填缺省动画并归一化朝向，入站状态统一过这一层
func sanitize(st proto.PlayerState) proto.PlayerState {
	if st.Animation == "" {
		st.Animation = DefaultAnimation
	}
	st.Rotation = NormalizeAngle(st.Rotation)
	return st
}

// cloneFlags 复制布尔开关表，避免共享底层 map
func cloneFlags(src map[string]bool) map[string]bool {
	if src == nil {
		return nil
	}
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// flagsEqual 比较开关表，缺失键视作 false
func flagsEqual(a, b map[string]bool) bool {
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	for k, v := range b {
		if a[k] != v {
			return false
		}
	}
	return true
}

func cloneState(st proto.PlayerState) proto.PlayerState {
	st.Flags = cloneFlags(st.Flags)
	return st
}

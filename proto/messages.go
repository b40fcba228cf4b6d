package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 事件类型（客户端 → 服务端）
const (
	TypeJoin           = "join"
	TypeMove           = "move"
	TypeRequestPlayers = "request-players"
	TypeEmoji          = "emoji"
	TypeColor          = "color"
)

// 事件类型（服务端 → 客户端）
const (
	TypeWelcome            = "welcome"
	TypePlayers            = "players"
	TypePlayerJoined       = "player-joined"
	TypePlayerMoved        = "player-moved"
	TypePlayerLeft         = "player-left"
	TypePlayerEmoji        = "player-emoji"
	TypePlayerEmojiRemoved = "player-emoji-removed"
)

// 协议边界的统一错误：未知类型与缺失 id 都走同一条丢弃路径
var (
	ErrUnknownType = errors.New("proto: unknown message type")
	ErrMissingID   = errors.New("proto: missing id")
	ErrBadPayload  = errors.New("proto: bad payload")
)

// Vec3 世界坐标三分量向量，线上编码为 JSON 数组 [x, y, z]
type Vec3 [3]float64

// PlayerState 单个玩家的完整状态，用于 join / player-joined / 全量名册
type PlayerState struct {
	ID        string          `json:"id" jsonschema:"title=Session id,description=服务端分配的会话标识"`
	Position  Vec3            `json:"position" jsonschema:"description=世界坐标 [x y z]"`
	Rotation  float64         `json:"rotation" jsonschema:"description=朝向(弧度)，归一化到 (-π, π]"`
	Animation string          `json:"animation,omitempty" jsonschema:"description=动画标签，缺省为 idle"`
	Color     string          `json:"color,omitempty" jsonschema:"description=显示颜色(十六进制或命名色)"`
	Flags     map[string]bool `json:"flags,omitempty" jsonschema:"description=附加布尔开关，缺失即 false"`
}

// MovePayload 部分状态更新：仅携带出阈值的字段，指针为 nil 表示该字段未变化
// Seq 为发送端单调递增序列号，用于丢弃乱序到达的旧更新
type MovePayload struct {
	ID        string          `json:"id" jsonschema:"title=Session id"`
	Seq       uint64          `json:"seq,omitempty" jsonschema:"description=发送端单调序列号"`
	Position  *Vec3           `json:"position,omitempty"`
	Rotation  *float64        `json:"rotation,omitempty"`
	Animation *string         `json:"animation,omitempty"`
	Color     *string         `json:"color,omitempty"`
	Flags     map[string]bool `json:"flags,omitempty"`
}

// WelcomePayload 连接建立后服务端下发的会话标识
type WelcomePayload struct {
	ID string `json:"id"`
}

// LeftPayload 玩家离开通知
type LeftPayload struct {
	ID string `json:"id"`
}

// EmojiPayload 临时表情（客户端 3 秒后自动过期）
type EmojiPayload struct {
	ID    string `json:"id"`
	Emoji string `json:"emoji"`
}

// ColorPayload 显式换色
type ColorPayload struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// Envelope 线上信封：type 判别字段 + 原始载荷
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message 解码后的带标签联合：Type 决定哪个字段非空
type Message struct {
	Type    string
	Welcome *WelcomePayload
	Join    *PlayerState
	Players map[string]PlayerState
	Move    *MovePayload
	Left    *LeftPayload
	Emoji   *EmojiPayload
	Color   *ColorPayload
}

// Encode 组装一条出站消息
func Encode(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("proto: marshal %s payload: %w", msgType, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Decode 在网络边界解码并校验一条入站消息
// 未知类型、载荷无法解析、必填 id 缺失均返回错误，调用方统一丢弃并记日志
func Decode(data []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	msg := &Message{Type: strings.ToLower(env.Type)}
	switch msg.Type {
	case TypeWelcome:
		var p WelcomePayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, ErrMissingID
		}
		msg.Welcome = &p
	case TypeJoin, TypePlayerJoined:
		var p PlayerState
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, ErrMissingID
		}
		msg.Join = &p
	case TypePlayers:
		var p map[string]PlayerState
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		msg.Players = p
	case TypeMove, TypePlayerMoved:
		var p MovePayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, ErrMissingID
		}
		msg.Move = &p
	case TypePlayerLeft:
		var p LeftPayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, ErrMissingID
		}
		msg.Left = &p
	case TypeEmoji, TypePlayerEmoji, TypePlayerEmojiRemoved:
		var p EmojiPayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, ErrMissingID
		}
		msg.Emoji = &p
	case TypeColor:
		var p ColorPayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, ErrMissingID
		}
		msg.Color = &p
	case TypeRequestPlayers:
		// 无载荷
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return msg, nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

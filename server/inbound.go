package server

import "miniplaza/proto"

// inbound 读泵投递给广场协程的一条入站消息
// 统一在广场协程里解释，网络读协程不碰名册
type inbound struct {
	sessionID string
	msg       *proto.Message
}

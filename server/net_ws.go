package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"miniplaza/proto"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second // 必须小于 pongWait
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, 64),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
		// 为了实时性，丢弃旧消息（防止阻塞广场协程）
	}
}

// Close 关闭底层连接与发送队列
func (c *ClientConn) Close() {
	if c.send != nil {
		// 关闭发送通道以结束写协程
		close(c.send)
		c.send = nil
	}
	_ = c.ws.Close()
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发 ping 保活
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，解码后投递给广场协程
func (c *ClientConn) readPump(plaza *Plaza, sessionID string) {
	defer c.ws.Close()
	// 读泵退出时，通知广场在自己的协程中移除该会话
	defer plaza.RequestLeave(sessionID)
	c.ws.SetReadLimit(1 << 20) // 1MB
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		msg, err := proto.Decode(payload)
		if err != nil {
			// 单帧畸形数据：计数后丢弃，不断连接
			plaza.metrics.IncMalformedDropped()
			Log.Debugw("dropped inbound frame", "session", sessionID, "err", err)
			continue
		}
		plaza.Submit(inbound{sessionID: sessionID, msg: msg})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?plaza=lobby
// 会话 id 由服务端用 uuid 分配，welcome 先于一切消息下发
func HandleWS(w http.ResponseWriter, r *http.Request) {
	plazaID := r.URL.Query().Get("plaza")
	if plazaID == "" {
		plazaID = "lobby"
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "err", err)
		return
	}

	pm := GetPlazaManager()
	plaza := pm.GetOrCreatePlaza(plazaID)

	sessionID := uuid.NewString()
	client := NewClientConn(ws)

	welcome, err := proto.Encode(proto.TypeWelcome, proto.WelcomePayload{ID: sessionID})
	if err != nil {
		Log.Errorw("encode welcome", "err", err)
		_ = ws.Close()
		return
	}
	client.Enqueue(welcome)

	plaza.Register(&member{id: sessionID, conn: client})

	go client.writePump()
	go client.readPump(plaza, sessionID)
}

package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"miniplaza/netsync"
	"miniplaza/proto"
)

// 重连退避：初始 1 秒，指数翻倍封顶 30 秒
const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
	writeTimeout  = 5 * time.Second
	readTimeout   = 60 * time.Second
	sendQueueSize = 64
)

// ErrNotConnected 连接尚未建立时的出站投递结果；核心会把它当作无操作
var ErrNotConnected = errors.New("client: not connected")

// ErrSendQueueFull 出站队列已满，这一帧被丢弃；
// 调用方不得推进差量基线，下个窗口重发差异
var ErrSendQueueFull = errors.New("client: send queue full")

// Client 把同步核心绑到 WebSocket 传输上：
// 读泵解码入站信封喂给 Session，写泵从发送队列出帧，
// 断线自动退避重连，重连后由服务端重新下发 welcome 触发重新加入
type Client struct {
	url  string
	sess *netsync.Session
	log  *zap.SugaredLogger

	mu   sync.Mutex
	send chan []byte
}

// New 建一个尚未拨号的客户端；Session 用本客户端作为 Emitter 构造：
//
//	c := client.New(url, log)
//	sess := netsync.NewSession(c, log)
//	c.Bind(sess)
func New(url string, log *zap.SugaredLogger) *Client {
	return &Client{url: url, log: log}
}

// Bind 绑定会话（构造顺序上 Session 需要 Emitter，只好二段式）
func (c *Client) Bind(sess *netsync.Session) {
	c.sess = sess
}

// Run 阻塞运行：拨号 → 读循环 → 断线 → 退避重连，直到 ctx 取消
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectBase
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.log.Warnw("client: dial failed", "url", c.url, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectBase
		c.log.Infow("client: connected", "url", c.url)
		c.runConn(ctx, conn)
		c.sess.HandleDisconnected()
		if err := ctx.Err(); err != nil {
			return err
		}
		c.log.Infow("client: connection lost, reconnecting")
	}
}

// runConn 单条连接的生命周期：起写泵，读循环到出错为止
func (c *Client) runConn(ctx context.Context, conn *websocket.Conn) {
	send := make(chan []byte, sendQueueSize)
	done := make(chan struct{})
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.send = nil
		c.mu.Unlock()
		close(done)
		_ = conn.Close()
	}()

	go writePump(conn, send, done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := proto.Decode(payload)
		if err != nil {
			// 单帧畸形数据不值得断会话
			c.log.Debugw("client: dropped frame", "err", err)
			continue
		}
		c.sess.HandleMessage(msg, time.Now())
	}
}

func writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// enqueue 非阻塞投递：没连接或队列满都报错，绝不阻塞输入路径
func (c *Client) enqueue(msgType string, payload any) error {
	b, err := proto.Encode(msgType, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	return pushFrame(send, b)
}

// pushFrame 把一帧塞进发送队列。拥塞时丢帧并返回 ErrSendQueueFull，
// 让核心保住旧基线，差异留到下个节流窗口重发
func pushFrame(send chan []byte, b []byte) error {
	if send == nil {
		return ErrNotConnected
	}
	select {
	case send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// —— netsync.Emitter 实现 ——

func (c *Client) EmitJoin(st proto.PlayerState) error {
	return c.enqueue(proto.TypeJoin, st)
}

func (c *Client) EmitMove(mv proto.MovePayload) error {
	return c.enqueue(proto.TypeMove, mv)
}

func (c *Client) EmitRequestPlayers() error {
	return c.enqueue(proto.TypeRequestPlayers, nil)
}

func (c *Client) EmitEmoji(id, emoji string) error {
	return c.enqueue(proto.TypeEmoji, proto.EmojiPayload{ID: id, Emoji: emoji})
}

func (c *Client) EmitColor(id, color string) error {
	return c.enqueue(proto.TypeColor, proto.ColorPayload{ID: id, Color: color})
}

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"miniplaza/netsync"
	"miniplaza/proto"
)

func TestEmitBeforeConnectReportsNotConnected(t *testing.T) {
	c := New("ws://127.0.0.1:0/ws", zap.NewNop().Sugar())
	// 连接建立前的发送是可识别的无操作，核心据此降级
	if err := c.EmitRequestPlayers(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if err := c.EmitMove(proto.MovePayload{ID: "x"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if err := c.EmitEmoji("x", "🎉"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestEmitOnFullQueueReportsError(t *testing.T) {
	c := New("ws://127.0.0.1:0/ws", zap.NewNop().Sugar())
	full := make(chan []byte, 1)
	full <- []byte("{}")
	c.mu.Lock()
	c.send = full
	c.mu.Unlock()

	// 拥塞时丢帧必须报错，核心才知道这帧没发出去、不能推进基线
	if err := c.EmitMove(proto.MovePayload{ID: "x"}); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("err = %v, want ErrSendQueueFull", err)
	}

	<-full
	if err := c.EmitMove(proto.MovePayload{ID: "x"}); err != nil {
		t.Fatalf("err = %v after queue drained", err)
	}
}

// 断连后单连接的辅助 goroutine（写泵、ctx 看门狗）必须全部退出，
// 否则每轮重连都会净增一个
func TestRunReleasesConnGoroutines(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		b, _ := proto.Encode(proto.TypeWelcome, proto.WelcomePayload{ID: "s1"})
		_ = ws.WriteMessage(websocket.TextMessage, b)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	before := runtime.NumGoroutine()
	c := New("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", zap.NewNop().Sugar())
	sess := netsync.NewSession(c, zap.NewNop().Sugar())
	c.Bind(sess)
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(ran)
	}()

	// 等 welcome 处理完再断开
	deadline := time.Now().Add(5 * time.Second)
	for sess.State() == netsync.StateDisconnected {
		if time.Now().After(deadline) {
			t.Fatal("never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-ran

	deadline = time.Now().Add(5 * time.Second)
	for runtime.NumGoroutine() > before+2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d, want <= %d", runtime.NumGoroutine(), before+2)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

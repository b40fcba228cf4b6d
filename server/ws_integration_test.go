package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"miniplaza/client"
	"miniplaza/netsync"
	"miniplaza/proto"
)

// 起一个真实的中继 + 两个真实的同步会话，端到端验证
// join/roster/move/interp/emoji/left 的整条链路

func startRelay(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	// 广场管理器是进程级单例，每个测试用独立广场名隔离
	plazaID := fmt.Sprintf("it-%d", time.Now().UnixNano())
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?plaza=" + plazaID
}

func startPeer(t *testing.T, url string) (*netsync.Session, context.CancelFunc) {
	t.Helper()
	log := zap.NewNop().Sugar()
	c := client.New(url, log)
	sess := netsync.NewSession(c, log)
	c.Bind(sess)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(cancel)
	return sess, cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndToEndJoinMoveLeave(t *testing.T) {
	url := startRelay(t)

	sessA, cancelA := startPeer(t, url)
	waitFor(t, "A synced", func() bool { return sessA.State() == netsync.StateSynced })
	sessA.SetLocalColor("#ff0000")

	// A 往 [5,0,0] 报几拍位置，确保穿过节流窗口
	for i := 0; i < 5; i++ {
		sessA.PublishLocal(proto.Vec3{5, 0, 0}, 1.0, "walk", time.Now())
		time.Sleep(60 * time.Millisecond)
	}

	sessB, _ := startPeer(t, url)
	waitFor(t, "B synced", func() bool { return sessB.State() == netsync.StateSynced })
	waitFor(t, "B sees A in roster", func() bool { return sessB.Store().Len() == 2 })

	aID := sessA.Store().LocalID()
	aInB, ok := sessB.Store().Get(aID)
	if !ok {
		t.Fatal("A missing from B's store")
	}
	if aInB.Color != "#ff0000" {
		t.Fatalf("A color in B = %q", aInB.Color)
	}

	// A 移步到 [8,0,2]；B 侧显示位置应经插值收敛过去
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			sessA.PublishLocal(proto.Vec3{8, 0, 2}, 1.0, "run", time.Now())
			time.Sleep(60 * time.Millisecond)
		}
	}()
	waitFor(t, "B interpolates A to target", func() bool {
		st, ok := sessB.Store().Get(aID)
		if !ok {
			return false
		}
		return math.Abs(st.Position[0]-8) < 0.05 && math.Abs(st.Position[2]-2) < 0.05
	})
	<-done
	aInB, _ = sessB.Store().Get(aID)
	if aInB.Animation != "run" {
		t.Fatalf("animation in B = %q, want run (applied immediately)", aInB.Animation)
	}

	// 表情：B 应看到 A 的表情挂上
	sessA.SendEmoji("🎉", time.Now())
	waitFor(t, "B sees A's emoji", func() bool {
		e, ok := sessB.Emojis().Get(aID, time.Now())
		return ok && e == "🎉"
	})

	// A 断开：B 的名册与插值目标同步消失
	cancelA()
	waitFor(t, "B sees A leave", func() bool { return sessB.Store().Len() == 1 })
	if _, ok := sessB.Emojis().Get(aID, time.Now()); ok {
		t.Fatal("emoji survived A's departure")
	}
}

func TestEndToEndLocalAuthorityOnRoster(t *testing.T) {
	url := startRelay(t)

	sessA, _ := startPeer(t, url)
	waitFor(t, "A synced", func() bool { return sessA.State() == netsync.StateSynced })

	sessA.SetLocalColor("green")
	sessA.PublishLocal(proto.Vec3{1, 0, 1}, 0, "walk", time.Now())

	// 周期重同步用 30s 太久，直接再拉一次全量验证本地权威字段不被冲掉
	local, _ := sessA.Store().Local()
	time.Sleep(200 * time.Millisecond)
	waitFor(t, "local fields stable across roster pulls", func() bool {
		cur, ok := sessA.Store().Local()
		return ok && cur.Color == local.Color && cur.Position == local.Position
	})
}

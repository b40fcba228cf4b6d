package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"miniplaza/client"
	"miniplaza/netsync"
	"miniplaza/proto"
)

// 无头客户端：连上中继后随机游走，用来压测同步核心与中继
func main() {
	var url string
	var color string
	var speed float64
	var emojiEvery time.Duration
	flag.StringVar(&url, "url", "ws://localhost:8080/ws?plaza=lobby", "relay websocket url")
	flag.StringVar(&color, "color", "#4f9dff", "avatar color")
	flag.Float64Var(&speed, "speed", 2.0, "walk speed, units per second")
	flag.DurationVar(&emojiEvery, "emoji-every", 15*time.Second, "emoji cadence, 0 to disable")
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := zl.Sugar()
	defer func() { _ = zl.Sync() }()

	c := client.New(url, log)
	sess := netsync.NewSession(c, log)
	c.Bind(sess)
	sess.SetLocalColor(color)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	go func() {
		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("client stopped", "err", err)
		}
	}()

	go wander(ctx, sess, speed)
	if emojiEvery > 0 {
		go emojiLoop(ctx, sess, emojiEvery)
	}
	rosterLoop(ctx, sess, log)
}

// wander 朝随机漫游点走，走到就换下一个；30Hz 采样喂给同步核心
func wander(ctx context.Context, sess *netsync.Session, speed float64) {
	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	pos := proto.Vec3{0, 0, 0}
	target := randomPoint()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			dx := target[0] - pos[0]
			dz := target[2] - pos[2]
			dist := math.Hypot(dx, dz)
			if dist < 0.1 {
				target = randomPoint()
				sess.PublishLocal(pos, math.Atan2(dx, dz), netsync.DefaultAnimation, now)
				continue
			}
			step := speed * dt
			if step > dist {
				step = dist
			}
			pos[0] += dx / dist * step
			pos[2] += dz / dist * step
			sess.PublishLocal(pos, math.Atan2(dx, dz), "walk", now)
		}
	}
}

func emojiLoop(ctx context.Context, sess *netsync.Session, every time.Duration) {
	emojis := []string{"👋", "🎉", "😀", "⚡"}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sess.SendEmoji(emojis[rand.Intn(len(emojis))], now)
		}
	}
}

// rosterLoop 定期把名册打到标准输出，方便肉眼确认同步情况
func rosterLoop(ctx context.Context, sess *netsync.Session, log *zap.SugaredLogger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := sess.Store().Snapshot()
			ids := make([]string, 0, len(snap))
			for id := range snap {
				ids = append(ids, string(id))
			}
			sort.Strings(ids)
			fmt.Printf("--- %s | state=%s | players=%d\n", time.Now().Format("15:04:05"), sess.State(), len(snap))
			for _, id := range ids {
				st := snap[netsync.PlayerID(id)]
				marker := " "
				if netsync.PlayerID(id) == sess.Store().LocalID() {
					marker = "*"
				}
				fmt.Printf("  %s %-8s pos=[%6.2f %6.2f %6.2f] rot=%5.2f anim=%s\n",
					marker, shortID(id), st.Position[0], st.Position[1], st.Position[2], st.Rotation, st.Animation)
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func randomPoint() proto.Vec3 {
	return proto.Vec3{rand.Float64()*40 - 20, 0, rand.Float64()*40 - 20}
}

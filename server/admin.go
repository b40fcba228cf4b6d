package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// HandleAdminConfig 提供广场配置的读取与更新（热更新基本规则）
// GET  /admin/config?plaza=lobby  返回当前配置
// POST /admin/config?plaza=lobby  以 JSON 载荷更新部分字段
func HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	plazaID := r.URL.Query().Get("plaza")
	if plazaID == "" {
		plazaID = "lobby"
	}
	pm := GetPlazaManager()
	plaza := pm.GetOrCreatePlaza(plazaID)

	type cfg struct {
		MoveWindowMs *int `json:"moveWindowMs,omitempty"`
		MaxMembers   *int `json:"maxMembers,omitempty"`
		EmojiTTLMs   *int `json:"emojiTtlMs,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		plaza.cfgMu.Lock()
		mw := int(plaza.moveWindow / time.Millisecond)
		mm := plaza.maxMembers
		et := int(plaza.emojiTTL / time.Millisecond)
		plaza.cfgMu.Unlock()
		cur := cfg{MoveWindowMs: &mw, MaxMembers: &mm, EmojiTTLMs: &et}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cur)
		return
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		plaza.cfgMu.Lock()
		if body.MoveWindowMs != nil {
			plaza.moveWindow = time.Duration(*body.MoveWindowMs) * time.Millisecond
		}
		if body.MaxMembers != nil {
			plaza.maxMembers = *body.MaxMembers
		}
		if body.EmojiTTLMs != nil {
			plaza.emojiTTL = time.Duration(*body.EmojiTTLMs) * time.Millisecond
		}
		mw := plaza.moveWindow
		mm := plaza.maxMembers
		et := plaza.emojiTTL
		plaza.cfgMu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		Log.Infow("config updated", "plaza", plazaID,
			"moveWindow", mw, "maxMembers", mm, "emojiTTL", et)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
}

// HandleMetrics 输出指定广场的运行指标
// GET /metrics?plaza=lobby
func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	plazaID := r.URL.Query().Get("plaza")
	if plazaID == "" {
		plazaID = "lobby"
	}
	pm := GetPlazaManager()
	plaza := pm.GetOrCreatePlaza(plazaID)
	payload := map[string]any{
		"plaza":   plazaID,
		"metrics": plaza.metrics.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"route-api/internal/routeplan"
)

// 文档注释：状态变化事件流（Server-Sent Events）
// 背景：前端订阅后按事件类型刷新对应视图；每条事件携带当前列表版本与两个定位令牌。
// 约束：慢消费者的事件被丢弃而不是阻塞存储；连接断开即取消订阅。
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	ch := make(chan routeplan.Event, 32)
	cancel := h.st.Subscribe(func(e routeplan.Event) {
		select {
		case ch <- e:
		default:
		}
	})
	defer cancel()
	w.Header().Set("content-type", "text/event-stream")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			snap := h.st.Snapshot()
			b, _ := json.Marshal(map[string]any{
				"listVersion":     snap.ListVersion,
				"mapFocusToken":   snap.MapFocusToken,
				"mapTabJumpToken": snap.MapTabJumpToken,
			})
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, b); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

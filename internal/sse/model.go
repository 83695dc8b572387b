package sse

import "net/http"

// EventType SSE事件类型
type EventType string

const (
	EventTypeConnected      EventType = "connected"
	EventTypeScanUpdate     EventType = "scan-update"
	EventTypeSessionExpired EventType = "session-expired"
)

// Event 推送给前端的事件数据
type Event struct {
	Type    EventType   `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Client SSE 客户端连接
type Client struct {
	ID     string
	Writer http.ResponseWriter
	Events chan Event
}

package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	log "AuditLumaDash/internal/log"
	"AuditLumaDash/internal/scan"
)

// Service SSE 推送服务：维护前端连接，向订阅者广播扫描进度
// 与会话失效事件。每个客户端持有独立的事件通道与写协程。
type Service struct {
	mu      sync.RWMutex
	clients map[string]*Client
	// scanSubs 扫描订阅关系 scanID -> clientID 集合；
	// 未订阅任何扫描的客户端视为全局监听者
	scanSubs map[string]map[string]struct{}
	closed   bool
}

// NewService 创建 SSE 推送服务
func NewService() *Service {
	return &Service{
		clients:  make(map[string]*Client),
		scanSubs: make(map[string]map[string]struct{}),
	}
}

// AddClient 添加新的SSE客户端并启动写协程
func (s *Service) AddClient(clientID string, w http.ResponseWriter) {
	client := &Client{
		ID:     clientID,
		Writer: w,
		Events: make(chan Event, 16),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(client.Events)
		return
	}
	s.clients[clientID] = client
	s.mu.Unlock()

	go s.writeLoop(client)
}

// writeLoop 持续将事件写入响应流，通道关闭后退出
func (s *Service) writeLoop(client *Client) {
	flusher, canFlush := client.Writer.(http.Flusher)
	for event := range client.Events {
		data, err := json.Marshal(event)
		if err != nil {
			log.Warnf("序列化SSE事件失败: %v", err)
			continue
		}
		if _, err := client.Writer.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			log.Debugf("SSE写入失败，客户端可能已断开: %v", err)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// RemoveClient 移除SSE客户端并清理其订阅
func (s *Service) RemoveClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[clientID]
	if !ok {
		return
	}
	delete(s.clients, clientID)
	for scanID, subs := range s.scanSubs {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(s.scanSubs, scanID)
		}
	}
	close(client.Events)
}

// SubscribeToScan 订阅指定扫描的进度推送
func (s *Service) SubscribeToScan(clientID, scanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return
	}
	if s.scanSubs[scanID] == nil {
		s.scanSubs[scanID] = make(map[string]struct{})
	}
	s.scanSubs[scanID][clientID] = struct{}{}
}

// UnsubscribeFromScan 取消扫描订阅
func (s *Service) UnsubscribeFromScan(clientID, scanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subs, ok := s.scanSubs[scanID]; ok {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(s.scanSubs, scanID)
		}
	}
}

// PublishScan 推送扫描状态更新：发给该扫描的订阅者与全局监听者
func (s *Service) PublishScan(status *scan.Status) {
	event := Event{Type: EventTypeScanUpdate, Data: status}

	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.scanSubs[status.ID]
	for id, client := range s.clients {
		if _, subscribed := subs[id]; !subscribed && !s.isGlobalLocked(id) {
			continue
		}
		s.sendLocked(client, event)
	}
}

// PublishSessionExpired 广播会话失效事件，前端收到后跳转登录页
func (s *Service) PublishSessionExpired() {
	s.Broadcast(Event{Type: EventTypeSessionExpired, Message: "会话已失效，请重新登录"})
}

// Broadcast 向所有客户端广播事件
func (s *Service) Broadcast(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		s.sendLocked(client, event)
	}
}

// isGlobalLocked 判断客户端是否为全局监听者（未订阅任何扫描），需持有读锁
func (s *Service) isGlobalLocked(clientID string) bool {
	for _, subs := range s.scanSubs {
		if _, ok := subs[clientID]; ok {
			return false
		}
	}
	return true
}

// sendLocked 非阻塞投递，通道满时丢弃并记录，需持有读锁
func (s *Service) sendLocked(client *Client, event Event) {
	select {
	case client.Events <- event:
	default:
		log.Warnf("SSE客户端 %s 事件通道已满，丢弃事件", client.ID)
	}
}

// Close 关闭服务，断开所有客户端
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, client := range s.clients {
		delete(s.clients, id)
		close(client.Events)
	}
	s.scanSubs = make(map[string]map[string]struct{})
}

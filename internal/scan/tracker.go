package scan

import (
	"context"
	"sync"
	"time"

	log "AuditLumaDash/internal/log"
)

// Backend 追踪器依赖的后端能力
type Backend interface {
	StartScan(ctx context.Context, req StartRequest) (*Status, error)
	ScanStatus(ctx context.Context, scanID string) (*Status, error)
}

// Publisher 状态更新的推送出口（SSE），可为 nil
type Publisher interface {
	PublishScan(status *Status)
}

// Tracker 服务端扫描追踪器：每个项目最多持有一个轮询任务，
// 启动新扫描前先取消旧任务，关停时统一释放全部任务。
type Tracker struct {
	backend   Backend
	publisher Publisher
	interval  time.Duration

	// ctx 轮询任务的父上下文，独立于触发请求的生命周期
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	runs map[string]*run
}

// run 单个项目的扫描追踪状态
type run struct {
	handle  *Handle
	status  *Status
	lastErr string
}

// NewTracker 创建扫描追踪器；interval <= 0 时使用默认轮询间隔
func NewTracker(backend Backend, publisher Publisher, interval time.Duration) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		backend:   backend,
		publisher: publisher,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[string]*run),
	}
}

// Start 为指定项目启动一次扫描并开始轮询其状态。
// 同一项目已有轮询任务时先取消，避免重复定时器。
func (t *Tracker) Start(ctx context.Context, projectID string, scanTypes []string) (*Status, error) {
	initial, err := t.backend.StartScan(ctx, StartRequest{
		ProjectID: projectID,
		ScanType:  scanTypes,
	})
	if err != nil {
		return nil, err
	}
	scanID := initial.ID

	t.mu.Lock()
	if prev, ok := t.runs[projectID]; ok && prev.handle != nil {
		prev.handle.Cancel()
	}
	r := &run{status: initial}
	t.runs[projectID] = r
	r.handle = Start(t.ctx, t.interval,
		func(ctx context.Context) (*Status, error) {
			return t.backend.ScanStatus(ctx, scanID)
		},
		func(status *Status, err error) {
			t.onUpdate(projectID, r, status, err)
		},
	)
	t.mu.Unlock()

	log.Infow("扫描已启动", log.Fields{"projectId": projectID, "scanId": scanID})
	return initial, nil
}

// onUpdate 记录最新状态并推送
func (t *Tracker) onUpdate(projectID string, r *run, status *Status, err error) {
	t.mu.Lock()
	// 该项目已被新一轮扫描接管时丢弃过期更新
	if current, ok := t.runs[projectID]; !ok || current != r {
		t.mu.Unlock()
		return
	}
	if err != nil {
		r.lastErr = err.Error()
		t.mu.Unlock()
		log.Warnw("获取扫描状态失败", log.Fields{"projectId": projectID, "err": err.Error()})
		return
	}
	r.status = status
	r.lastErr = ""
	t.mu.Unlock()

	if status.Status.Terminal() {
		log.Infow("扫描到达终态", log.Fields{
			"projectId": projectID,
			"scanId":    status.ID,
			"status":    string(status.Status),
		})
	}
	if t.publisher != nil {
		t.publisher.PublishScan(status)
	}
}

// Status 返回指定项目最近一次扫描的状态；从未扫描过时返回 false
func (t *Tracker) Status(projectID string) (*Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[projectID]
	if !ok || r.status == nil {
		return nil, false
	}
	s := *r.status
	return &s, true
}

// LastError 返回指定项目最近一次轮询失败的错误信息
func (t *Tracker) LastError(projectID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.runs[projectID]; ok {
		return r.lastErr
	}
	return ""
}

// Close 取消全部轮询任务并等待退出
func (t *Tracker) Close() {
	t.cancel()

	t.mu.Lock()
	handles := make([]*Handle, 0, len(t.runs))
	for _, r := range t.runs {
		if r.handle != nil {
			handles = append(handles, r.handle)
		}
	}
	t.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
		<-h.Done()
	}
}

package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTrackerBackend 可编程的扫描后端
type fakeTrackerBackend struct {
	mu       sync.Mutex
	nextScan int
	// fetches 按 scanId 统计状态拉取次数
	fetches map[string]int
	// states 按 scanId 指定返回状态；缺省 running
	states map[string]State

	startErr  error
	statusErr error
}

func newFakeTrackerBackend() *fakeTrackerBackend {
	return &fakeTrackerBackend{
		fetches: make(map[string]int),
		states:  make(map[string]State),
	}
}

func (f *fakeTrackerBackend) StartScan(ctx context.Context, req StartRequest) (*Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.nextScan++
	return &Status{
		ID:        fmt.Sprintf("scan-%d", f.nextScan),
		ProjectID: req.ProjectID,
		Status:    StateQueued,
		StartedAt: time.Now(),
		ScanType:  req.ScanType,
	}, nil
}

func (f *fakeTrackerBackend) ScanStatus(ctx context.Context, scanID string) (*Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	f.fetches[scanID]++
	state, ok := f.states[scanID]
	if !ok {
		state = StateRunning
	}
	return &Status{
		ID:        scanID,
		ProjectID: "proj-1",
		Status:    state,
		Progress:  50,
		StartedAt: time.Now(),
	}, nil
}

func (f *fakeTrackerBackend) fetchCount(scanID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[scanID]
}

func (f *fakeTrackerBackend) setState(scanID string, state State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[scanID] = state
}

// recordPublisher 记录推送出来的状态
type recordPublisher struct {
	count int32
	mu    sync.Mutex
	last  *Status
}

func (p *recordPublisher) PublishScan(status *Status) {
	atomic.AddInt32(&p.count, 1)
	p.mu.Lock()
	p.last = status
	p.mu.Unlock()
}

func TestTrackerStartAndStatus(t *testing.T) {
	backend := newFakeTrackerBackend()
	pub := &recordPublisher{}
	tracker := NewTracker(backend, pub, testInterval)
	defer tracker.Close()

	initial, err := tracker.Start(context.Background(), "proj-1", []string{ScanTypeCodeReview})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if initial.ID != "scan-1" || initial.Status != StateQueued {
		t.Fatalf("意外的初始状态: %+v", initial)
	}

	// 等待至少一次状态拉取与推送
	deadline := time.Now().Add(time.Second)
	for backend.fetchCount("scan-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("轮询未拉取状态")
		}
		time.Sleep(testInterval)
	}

	status, ok := tracker.Status("proj-1")
	if !ok {
		t.Fatal("Status 未返回追踪中的扫描")
	}
	if status.ProjectID != "proj-1" {
		t.Errorf("projectId = %q", status.ProjectID)
	}
	if atomic.LoadInt32(&pub.count) == 0 {
		t.Error("状态更新未推送")
	}
}

// 同一项目重新扫描时旧轮询必须停止
func TestTrackerRestartCancelsPrevious(t *testing.T) {
	backend := newFakeTrackerBackend()
	tracker := NewTracker(backend, nil, testInterval)
	defer tracker.Close()

	if _, err := tracker.Start(context.Background(), "proj-1", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for backend.fetchCount("scan-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("首轮轮询未启动")
		}
		time.Sleep(testInterval)
	}

	if _, err := tracker.Start(context.Background(), "proj-1", nil); err != nil {
		t.Fatalf("重新 Start: %v", err)
	}

	// 稍等让取消生效，之后 scan-1 的拉取次数不再增长
	time.Sleep(3 * testInterval)
	settled := backend.fetchCount("scan-1")
	time.Sleep(5 * testInterval)
	if got := backend.fetchCount("scan-1"); got != settled {
		t.Errorf("旧轮询仍在拉取 scan-1: %d -> %d", settled, got)
	}

	// 新轮询正常工作
	deadline = time.Now().Add(time.Second)
	for backend.fetchCount("scan-2") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("新轮询未启动")
		}
		time.Sleep(testInterval)
	}
	status, ok := tracker.Status("proj-1")
	if !ok || status.ID != "scan-2" {
		t.Errorf("Status 未切换到新扫描: %+v", status)
	}
}

func TestTrackerStartError(t *testing.T) {
	backend := newFakeTrackerBackend()
	backend.startErr = errors.New("后端不可用")
	tracker := NewTracker(backend, nil, testInterval)
	defer tracker.Close()

	if _, err := tracker.Start(context.Background(), "proj-1", nil); err == nil {
		t.Fatal("期望启动失败")
	}
	if _, ok := tracker.Status("proj-1"); ok {
		t.Error("启动失败后不应留下追踪记录")
	}
}

// 轮询出错时记录 lastErr 并停止
func TestTrackerPollErrorRecorded(t *testing.T) {
	backend := newFakeTrackerBackend()
	backend.statusErr = errors.New("请求超时")
	tracker := NewTracker(backend, nil, testInterval)
	defer tracker.Close()

	if _, err := tracker.Start(context.Background(), "proj-1", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for tracker.LastError("proj-1") == "" {
		if time.Now().After(deadline) {
			t.Fatal("轮询错误未记录")
		}
		time.Sleep(testInterval)
	}
	if got := tracker.LastError("proj-1"); got != "请求超时" {
		t.Errorf("lastErr = %q", got)
	}
	// 初始状态仍可查询
	if status, ok := tracker.Status("proj-1"); !ok || status.Status != StateQueued {
		t.Errorf("初始状态丢失: %+v", status)
	}
}

// 终态后推送停止，推送计数稳定
func TestTrackerTerminalStopsPublishing(t *testing.T) {
	backend := newFakeTrackerBackend()
	backend.setState("scan-1", StateCompleted)
	pub := &recordPublisher{}
	tracker := NewTracker(backend, pub, testInterval)
	defer tracker.Close()

	if _, err := tracker.Start(context.Background(), "proj-1", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&pub.count) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("终态未推送")
		}
		time.Sleep(testInterval)
	}

	settled := atomic.LoadInt32(&pub.count)
	time.Sleep(5 * testInterval)
	if got := atomic.LoadInt32(&pub.count); got != settled {
		t.Errorf("终态后仍在推送: %d -> %d", settled, got)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.last == nil || pub.last.Status != StateCompleted {
		t.Errorf("最后推送的状态不是 completed: %+v", pub.last)
	}
}

func TestTrackerClose(t *testing.T) {
	backend := newFakeTrackerBackend()
	tracker := NewTracker(backend, nil, testInterval)

	if _, err := tracker.Start(context.Background(), "proj-1", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := tracker.Start(context.Background(), "proj-2", nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tracker.Close()

	c1 := backend.fetchCount("scan-1")
	c2 := backend.fetchCount("scan-2")
	time.Sleep(5 * testInterval)
	if backend.fetchCount("scan-1") != c1 || backend.fetchCount("scan-2") != c2 {
		t.Error("Close 后轮询仍在运行")
	}
}

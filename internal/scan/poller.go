package scan

import (
	"context"
	"time"
)

// DefaultInterval 轮询间隔，挂载后立即拉取一次，之后每 3 秒刷新
const DefaultInterval = 3 * time.Second

// FetchFunc 拉取一次扫描状态
type FetchFunc func(ctx context.Context) (*Status, error)

// UpdateFunc 每次拉取后的回调；err 非空时 status 为 nil
type UpdateFunc func(status *Status, err error)

// Handle 轮询任务句柄。Cancel 可重复调用；
// 无论任务处于何种状态，持有方的清理路径都必须调用 Cancel，
// 保证不泄漏定时器。
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel 停止轮询，幂等
func (h *Handle) Cancel() {
	h.cancel()
}

// Done 轮询 goroutine 退出后关闭
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start 启动轮询任务：立即拉取一次，之后按固定间隔重复，
// 拉取到终态（completed / failed）或拉取出错时自行停止。
// interval <= 0 时使用 DefaultInterval。
func Start(ctx context.Context, interval time.Duration, fetch FetchFunc, onUpdate UpdateFunc) *Handle {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer cancel()

		// 挂载后立即拉取一次
		if pollOnce(ctx, fetch, onUpdate) {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pollOnce(ctx, fetch, onUpdate) {
					return
				}
			}
		}
	}()

	return h
}

// pollOnce 执行一次拉取，返回 true 表示轮询应当终止
func pollOnce(ctx context.Context, fetch FetchFunc, onUpdate UpdateFunc) bool {
	status, err := fetch(ctx)
	// 已取消时不再回调，避免覆盖新一轮扫描的状态
	if ctx.Err() != nil {
		return true
	}
	onUpdate(status, err)
	if err != nil {
		return true
	}
	return status != nil && status.Status.Terminal()
}

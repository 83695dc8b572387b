package scan

import "time"

// State 扫描状态枚举
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal 是否为终态；到达终态后该次扫描不再发生状态迁移
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// 扫描类型常量
const (
	ScanTypeCodeReview      = "code_review"
	ScanTypeDependencyCheck = "dependency_check"
)

// FindingsCount 按严重级别统计的漏洞数量
type FindingsCount struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Total 全部级别漏洞总数
func (f *FindingsCount) Total() int {
	if f == nil {
		return 0
	}
	return f.Critical + f.High + f.Medium + f.Low + f.Info
}

// Status 一次扫描的当前状态，由后端上报、轮询刷新。
// Progress 为 0-100；后端未承诺单调递增，这里原样透传不做修正。
type Status struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	Status        State          `json:"status"`
	Progress      int            `json:"progress"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	FindingsCount *FindingsCount `json:"findings_count,omitempty"`
	ScanType      []string       `json:"scan_type"`
}

// StartRequest 启动扫描的请求体
type StartRequest struct {
	ProjectID string   `json:"project_id"`
	ScanType  []string `json:"scan_type,omitempty"`
}

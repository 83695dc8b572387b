package auditluma

// User 后端返回的用户信息
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

// LoginResult 登录接口响应
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// HealthInfo 健康检查响应
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Vulnerability 单条漏洞记录
type Vulnerability struct {
	ID          string `json:"id"`
	ScanID      string `json:"scan_id"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	LineNumber  int    `json:"line_number,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// ScanSummary 扫描结果摘要
type ScanSummary struct {
	ScanID       string         `json:"scan_id"`
	ProjectID    string         `json:"project_id"`
	TotalFiles   int            `json:"total_files"`
	TotalLines   int            `json:"total_lines"`
	BySeverity   map[string]int `json:"by_severity"`
	DurationSecs int            `json:"duration_seconds"`
}

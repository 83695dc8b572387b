package project

import "time"

// Project 审计项目
type Project struct {
	ID                 string     `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	Description        string     `json:"description" db:"description"`
	RepoURL            string     `json:"repo_url,omitempty" db:"repoUrl"`
	ScanType           []string   `json:"scan_type" db:"scanType"`
	ExcludePaths       []string   `json:"exclude_paths,omitempty" db:"excludePaths"`
	LastScanDate       *time.Time `json:"last_scan_date,omitempty" db:"lastScanDate"`
	ScanCount          int        `json:"scan_count" db:"scanCount"`
	VulnerabilityCount int        `json:"vulnerability_count" db:"vulnerabilityCount"`
	CreatedAt          time.Time  `json:"created_at" db:"createdAt"`
}

// CreateRequest 创建项目请求
type CreateRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	RepoURL      string   `json:"repo_url,omitempty"`
	ScanType     []string `json:"scan_type,omitempty"`
	ExcludePaths []string `json:"exclude_paths,omitempty"`
}

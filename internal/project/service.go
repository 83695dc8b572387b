package project

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound 项目不存在
var ErrNotFound = errors.New("项目不存在")

// Service 项目服务
type Service struct {
	db *sql.DB
}

// NewService 创建项目服务实例，需要传入数据库连接
func NewService(db *sql.DB) (*Service, error) {
	s := &Service{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	if err := s.seedSamples(); err != nil {
		return nil, err
	}
	return s, nil
}

// initSchema 创建项目表（如不存在）
func (s *Service) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS "Project" (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		repoUrl TEXT NOT NULL DEFAULT '',
		scanType TEXT NOT NULL DEFAULT '',
		excludePaths TEXT NOT NULL DEFAULT '',
		lastScanDate DATETIME,
		scanCount INTEGER NOT NULL DEFAULT 0,
		vulnerabilityCount INTEGER NOT NULL DEFAULT 0,
		createdAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

// seedSamples 空表时写入演示项目
func (s *Service) seedSamples() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM "Project"`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	samples := []Project{
		{
			ID:   "proj-001",
			Name: "Web应用安全审计", Description: "对企业Web应用进行安全漏洞扫描和代码审计",
			ScanType: []string{"code_review", "dependency_check"},
			ScanCount: 5, VulnerabilityCount: 12,
		},
		{
			ID:   "proj-002",
			Name: "移动应用安全检测", Description: "针对Android和iOS应用进行安全分析",
			ScanType: []string{"code_review"},
			ScanCount: 3, VulnerabilityCount: 8,
		},
		{
			ID:   "proj-003",
			Name: "开源组件风险评估", Description: "分析项目依赖的开源组件安全风险",
			ScanType: []string{"dependency_check"},
			ScanCount: 2, VulnerabilityCount: 5,
		},
	}
	for _, p := range samples {
		_, err := s.db.Exec(`
			INSERT INTO "Project" (id, name, description, scanType, scanCount, vulnerabilityCount)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Description, strings.Join(p.ScanType, ","), p.ScanCount, p.VulnerabilityCount)
		if err != nil {
			return err
		}
	}
	return nil
}

// List 返回全部项目，按创建时间倒序
func (s *Service) List() ([]Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, repoUrl, scanType, excludePaths,
		       lastScanDate, scanCount, vulnerabilityCount, createdAt
		FROM "Project" ORDER BY createdAt DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// Get 按 ID 查询项目
func (s *Service) Get(id string) (*Project, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, repoUrl, scanType, excludePaths,
		       lastScanDate, scanCount, vulnerabilityCount, createdAt
		FROM "Project" WHERE id = ?`, id)
	p, err := scanRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create 创建项目
func (s *Service) Create(req CreateRequest) (*Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("项目名称不能为空")
	}
	if len(req.ScanType) == 0 {
		req.ScanType = []string{"code_review", "dependency_check"}
	}

	p := &Project{
		ID:           "proj-" + uuid.New().String()[:8],
		Name:         req.Name,
		Description:  req.Description,
		RepoURL:      req.RepoURL,
		ScanType:     req.ScanType,
		ExcludePaths: req.ExcludePaths,
		CreatedAt:    time.Now(),
	}
	_, err := s.db.Exec(`
		INSERT INTO "Project" (id, name, description, repoUrl, scanType, excludePaths, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.RepoURL,
		strings.Join(p.ScanType, ","), strings.Join(p.ExcludePaths, ","), p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete 删除项目
func (s *Service) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM "Project" WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordScan 扫描完成后更新项目统计：累加扫描次数与漏洞数，刷新最近扫描时间
func (s *Service) RecordScan(id string, findings int) error {
	_, err := s.db.Exec(`
		UPDATE "Project"
		SET scanCount = scanCount + 1,
		    vulnerabilityCount = vulnerabilityCount + ?,
		    lastScanDate = CURRENT_TIMESTAMP
		WHERE id = ?`, findings, id)
	return err
}

// rowScanner 兼容 *sql.Row 与 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRow 将一行记录映射为 Project
func scanRow(row rowScanner) (*Project, error) {
	var p Project
	var scanType, excludePaths string
	var lastScan sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.RepoURL, &scanType, &excludePaths,
		&lastScan, &p.ScanCount, &p.VulnerabilityCount, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if scanType != "" {
		p.ScanType = strings.Split(scanType, ",")
	}
	if excludePaths != "" {
		p.ExcludePaths = strings.Split(excludePaths, ",")
	}
	if lastScan.Valid {
		p.LastScanDate = &lastScan.Time
	}
	return &p, nil
}

package siteconfig

import (
	"encoding/json"
	"errors"

	"AuditLumaDash/internal/storage"
)

// SiteConfig 网站备案与资质信息，展示在页面底部
type SiteConfig struct {
	ICP             string   `json:"icp"`
	PSR             string   `json:"psr"`
	BusinessLicense string   `json:"businessLicense"`
	OtherLicenses   []string `json:"otherLicenses"`
}

// storageKey 本地存储键名
const storageKey = "site-config"

// defaultConfig 默认配置，首次启动时使用
func defaultConfig() SiteConfig {
	return SiteConfig{
		ICP:             "京ICP备XXXXXXXX号-X",
		PSR:             "京公网安备XXXXXXXXXX号",
		BusinessLicense: "增值电信业务经营许可证：京B2-XXXXXXXX",
		OtherLicenses:   []string{"互联网药品信息服务资格证书：(京)-非经营性-XXXX-XXXX"},
	}
}

// Service 网站配置服务，配置以 JSON 形式持久化在本地存储
type Service struct {
	store *storage.Store
}

// NewService 创建网站配置服务实例
func NewService(store *storage.Store) *Service {
	return &Service{store: store}
}

// Get 读取当前网站配置，不存在或解析失败时返回默认配置
func (s *Service) Get() SiteConfig {
	raw, err := s.store.Get(storageKey)
	if err != nil {
		return defaultConfig()
	}
	var cfg SiteConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return defaultConfig()
	}
	return cfg
}

// Update 合并部分更新：只覆盖请求中出现的字段，返回合并后的完整配置。
// patch 必须是 JSON 对象，字段值本身不做进一步校验。
func (s *Service) Update(patch json.RawMessage) (SiteConfig, error) {
	var probe interface{}
	if err := json.Unmarshal(patch, &probe); err != nil {
		return SiteConfig{}, errors.New("无效的请求数据")
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		return SiteConfig{}, errors.New("无效的请求数据")
	}

	// 在当前配置基础上反序列化，未出现的字段保持原值
	cfg := s.Get()
	if err := json.Unmarshal(patch, &cfg); err != nil {
		return SiteConfig{}, errors.New("无效的请求数据")
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return SiteConfig{}, err
	}
	if err := s.store.Set(storageKey, string(data)); err != nil {
		return SiteConfig{}, err
	}
	return cfg, nil
}

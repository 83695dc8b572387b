package siteconfig

import (
	"database/sql"
	"encoding/json"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"AuditLumaDash/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewStore(db)
	if err != nil {
		t.Fatalf("初始化本地存储失败: %v", err)
	}
	return NewService(store)
}

func TestGetDefault(t *testing.T) {
	svc := newTestService(t)

	cfg := svc.Get()
	if cfg.ICP == "" || cfg.PSR == "" {
		t.Errorf("默认配置缺失: %+v", cfg)
	}
	if len(cfg.OtherLicenses) == 0 {
		t.Error("默认配置缺少其他资质项")
	}
}

// 部分更新只覆盖出现的字段
func TestUpdatePartialMerge(t *testing.T) {
	svc := newTestService(t)
	before := svc.Get()

	got, err := svc.Update(json.RawMessage(`{"icp":"京ICP备12345678号-1"}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ICP != "京ICP备12345678号-1" {
		t.Errorf("icp = %q", got.ICP)
	}
	if got.PSR != before.PSR || got.BusinessLicense != before.BusinessLicense {
		t.Error("未更新的字段被改写")
	}

	// 持久化生效
	again := svc.Get()
	if again.ICP != "京ICP备12345678号-1" {
		t.Errorf("更新未持久化, icp = %q", again.ICP)
	}
}

func TestUpdateReplacesList(t *testing.T) {
	svc := newTestService(t)

	got, err := svc.Update(json.RawMessage(`{"otherLicenses":["许可证A","许可证B"]}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got.OtherLicenses) != 2 || got.OtherLicenses[0] != "许可证A" {
		t.Errorf("otherLicenses = %v", got.OtherLicenses)
	}
}

func TestUpdateRejectsNonObject(t *testing.T) {
	svc := newTestService(t)
	before := svc.Get()

	for _, raw := range []string{`"字符串"`, `[1,2]`, `42`, `not-json`} {
		if _, err := svc.Update(json.RawMessage(raw)); err == nil {
			t.Errorf("Update(%s) 应当失败", raw)
		}
	}
	after := svc.Get()
	if after.ICP != before.ICP || after.PSR != before.PSR {
		t.Error("非法更新不应修改配置")
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "CONDUCT_LOG_LEVEL",
		"CONDUCT_R2_BUCKET", "CONDUCT_R2_ENDPOINT", "CONDUCT_R2_ACCESS_KEY_ID", "CONDUCT_R2_SECRET_ACCESS_KEY",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected default provider 'anthropic', got %q", cfg.LLM.Provider)
	}
	if cfg.Engine.PoolSize != 1 {
		t.Errorf("expected pool size 1, got %d", cfg.Engine.PoolSize)
	}
	if cfg.Engine.WorkerTimeout != 2*time.Minute {
		t.Errorf("expected worker timeout 2m, got %v", cfg.Engine.WorkerTimeout)
	}
	if cfg.Mission.MaxCycles != 5 {
		t.Errorf("expected max cycles 5, got %d", cfg.Mission.MaxCycles)
	}
	if cfg.Mission.Cooldown != 5*time.Second {
		t.Errorf("expected cooldown 5s, got %v", cfg.Mission.Cooldown)
	}
	if cfg.Mission.Verify {
		t.Error("expected mission.verify to be false")
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.Store.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromPath_MatchesDefault(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "log:\n  level: info\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	want := Default()
	if cfg.Engine != want.Engine || cfg.Mission != want.Mission || cfg.Store != want.Store || cfg.Upload != want.Upload {
		t.Errorf("loaded defaults differ from Default():\n got %+v\nwant %+v", cfg, want)
	}
}

func TestLoadFromPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_GEMINI_KEY", "AIza-from-env-reference")

	path := writeConfig(t, `
llm:
  provider: router
  cost_tier: cheap
  timeout: 30s
  gemini:
    api_key: ${MY_GEMINI_KEY}
engine:
  pool_size: 4
  worker_timeout: 45s
  reports_dir: out
mission:
  max_cycles: 3
  cooldown: 1s
  verify: true
store:
  driver: sqlite3
  mirror_dir: /tmp/mirror
upload:
  bucket: reports
  endpoint: https://r2.example.com
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.LLM.Provider != "router" || cfg.LLM.CostTier != "cheap" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("llm.timeout = %v, want 30s", cfg.LLM.Timeout)
	}
	if cfg.LLM.Gemini.APIKey != "AIza-from-env-reference" {
		t.Errorf("gemini key = %q, want expanded reference", cfg.LLM.Gemini.APIKey)
	}
	if cfg.Engine.PoolSize != 4 || cfg.Engine.WorkerTimeout != 45*time.Second || cfg.Engine.ReportsDir != "out" {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Mission.MaxCycles != 3 || cfg.Mission.Cooldown != time.Second || !cfg.Mission.Verify {
		t.Errorf("mission = %+v", cfg.Mission)
	}
	if cfg.Store.Driver != "sqlite3" || cfg.Store.MirrorDir != "/tmp/mirror" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Upload.Bucket != "reports" || cfg.Upload.Region != "auto" {
		t.Errorf("upload = %+v", cfg.Upload)
	}
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONDUCT_R2_BUCKET", "env-bucket")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-environment")

	cfg, err := LoadFromPath(writeConfig(t, "upload:\n  bucket: file-bucket\n"))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Upload.Bucket != "env-bucket" {
		t.Errorf("bucket = %q, want env-bucket", cfg.Upload.Bucket)
	}
	if cfg.LLM.Anthropic.APIKey != "sk-ant-from-environment" {
		t.Errorf("anthropic key = %q", cfg.LLM.Anthropic.APIKey)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"provider", "llm:\n  provider: openai\n", "llm.provider"},
		{"driver", "store:\n  driver: postgres\n", "store.driver"},
		{"pool size", "engine:\n  pool_size: 0\n", "engine.pool_size"},
		{"cycles", "mission:\n  max_cycles: 0\n", "mission.max_cycles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromPath(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveAndReload(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Engine.PoolSize = 3
	cfg.Mission.Cooldown = 250 * time.Millisecond
	cfg.Upload.Bucket = "saved"

	if err := SaveToPath(cfg, path); err != nil {
		t.Fatalf("SaveToPath failed: %v", err)
	}
	got, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if got.Engine.PoolSize != 3 || got.Mission.Cooldown != 250*time.Millisecond || got.Upload.Bucket != "saved" {
		t.Errorf("reloaded config = %+v", got)
	}
}

func TestSetAtPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := SetAtPath(path, "engine.pool_size", "6"); err != nil {
		t.Fatalf("SetAtPath failed: %v", err)
	}
	if err := SetAtPath(path, "mission.verify", "true"); err != nil {
		t.Fatalf("SetAtPath failed: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Engine.PoolSize != 6 {
		t.Errorf("pool size = %d, want 6", cfg.Engine.PoolSize)
	}
	if !cfg.Mission.Verify {
		t.Error("mission.verify not persisted")
	}

	if err := SetAtPath(path, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := SetAtPath(path, "engine.pool_size", "0"); err == nil {
		t.Error("expected validation error")
	}
}

func TestUserConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if got := GetUserConfigPath(); got != filepath.Join("/custom/config", "conduct", "config.yaml") {
		t.Errorf("GetUserConfigPath = %q", got)
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	projectFile := filepath.Join(root, ".conduct.yaml")
	if err := os.WriteFile(projectFile, []byte("engine:\n  pool_size: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	got, _ := filepath.EvalSymlinks(GetProjectConfigPath())
	want, _ := filepath.EvalSymlinks(projectFile)
	if got != want {
		t.Errorf("GetProjectConfigPath = %q, want %q", got, want)
	}
}

func TestConfigGet(t *testing.T) {
	cfg := Default()
	cfg.LLM.Anthropic.APIKey = "sk-ant-REDACTED"

	tests := []struct {
		key  string
		want string
	}{
		{"engine.pool_size", "1"},
		{"mission.cooldown", "5s"},
		{"llm.anthropic.api_key", "sk-ant-...mnop"},
		{"llm.gemini.api_key", ""},
	}
	for _, tt := range tests {
		got, err := cfg.Get(tt.key)
		if err != nil {
			t.Fatalf("Get(%q): %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}

	if _, err := cfg.Get("nope"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestKeys_Sorted(t *testing.T) {
	keys := Keys()
	if len(keys) == 0 {
		t.Fatal("no keys")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not sorted at %d: %q >= %q", i, keys[i-1], keys[i])
		}
	}
}

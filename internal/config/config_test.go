package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("BOT_TOKEN", "")
	return filepath.Join(dir, "sizesync")
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.IdleTimeout != DefaultIdleTimeout || cfg.Telegram.PollTimeout != DefaultPollTimeout {
		t.Errorf("telegram defaults = %+v", cfg.Telegram)
	}
	if cfg.Telegram.MaxDownloadBytes != DefaultMaxDownloadBytes {
		t.Errorf("max_download_bytes = %d", cfg.Telegram.MaxDownloadBytes)
	}
	if cfg.Resize.MaxIterations != 20 || cfg.Resize.MaxDimension != 10000 || cfg.Resize.MaxPixels != DefaultMaxPixels {
		t.Errorf("resize defaults = %+v", cfg.Resize)
	}
	if !cfg.History.Enabled || cfg.History.MaxCount != 1000 {
		t.Errorf("history defaults = %+v", cfg.History)
	}
	if cfg.Telegram.Token != "" {
		t.Errorf("token = %q, want empty", cfg.Telegram.Token)
	}
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `telegram:
  token: abc:123
  allowed_user_ids: [42, 7]
  idle_timeout: 5
resize:
  max_dimension: 4000
history:
  enabled: false
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "abc:123" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AllowedUserIDs) != 2 || cfg.Telegram.AllowedUserIDs[0] != 42 {
		t.Errorf("allowed ids = %v", cfg.Telegram.AllowedUserIDs)
	}
	if got := cfg.Telegram.IdleTimeoutDuration(); got != 5*time.Minute {
		t.Errorf("idle timeout = %s", got)
	}
	if cfg.Resize.MaxDimension != 4000 || cfg.Resize.MaxIterations != DefaultMaxIterations {
		t.Errorf("resize = %+v", cfg.Resize)
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled")
	}
}

func TestTokenEnvExpansion(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MY_BOT", "from-env")
	writeConfig(t, dir, "telegram:\n  token: ${MY_BOT}\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
}

func TestTokenEnvFallback(t *testing.T) {
	isolate(t)
	t.Setenv("BOT_TOKEN", "legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "legacy" {
		t.Errorf("token = %q, want BOT_TOKEN value", cfg.Telegram.Token)
	}

	t.Setenv("TELEGRAM_BOT_TOKEN", "preferred")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "preferred" {
		t.Errorf("token = %q, want TELEGRAM_BOT_TOKEN value", cfg.Telegram.Token)
	}
}

func TestIdleTimeoutDisabled(t *testing.T) {
	if got := (TelegramConfig{}).IdleTimeoutDuration(); got != 0 {
		t.Errorf("IdleTimeoutDuration = %s, want 0", got)
	}
}

func TestSetTelegramConfigPreservesFile(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "# my settings\nresize:\n  max_dimension: 5000 # keep\n")

	err := SetTelegramConfig(TelegramConfig{Token: "t0k", AllowedUserIDs: []int64{1, 2}, AllowedUsernames: []string{"alice"}})
	if err != nil {
		t.Fatalf("SetTelegramConfig: %v", err)
	}

	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"# my settings", "# keep", "token: t0k", "allowed_user_ids: [1, 2]", "allowed_usernames: [alice]"} {
		if !strings.Contains(text, want) {
			t.Errorf("config missing %q:\n%s", want, text)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "t0k" || cfg.Resize.MaxDimension != 5000 {
		t.Errorf("reloaded = %+v", cfg)
	}
}

func TestSetAndGetValue(t *testing.T) {
	isolate(t)

	if _, err := GetValue("resize.max_dimension"); err == nil {
		t.Fatal("expected error before the file exists")
	}
	if err := SetValue("resize.max_dimension", "2048"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := SetValue("history.max_count", "10"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := SetValue("resize.max_dimension", "3000"); err != nil {
		t.Fatalf("SetValue overwrite: %v", err)
	}

	got, err := GetValue("resize.max_dimension")
	if err != nil || got != "3000" {
		t.Fatalf("GetValue = %q, %v", got, err)
	}
	if _, err := GetValue("resize.nope"); err == nil {
		t.Error("expected error for missing key")
	}
	if !Exists() {
		t.Error("Exists() = false after SetValue")
	}
}

func TestSetValueReplacesScalarParent(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "telegram: off\n")

	if err := SetValue("telegram.token", "x"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	got, err := GetValue("telegram.token")
	if err != nil || got != "x" {
		t.Fatalf("GetValue = %q, %v", got, err)
	}
}

func TestGetConfigPath(t *testing.T) {
	dir := isolate(t)
	path, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "config.yaml") {
		t.Errorf("path = %q", path)
	}
}

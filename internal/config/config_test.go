package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"voxbox/internal/config"
)

func TestLoadDefaultConfigUsesEnvGeminiKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantInbox := filepath.Join(tempHome, ".local", "share", "voxbox", "inbox")
	if cfg.Paths.InboxDir != wantInbox {
		t.Fatalf("unexpected inbox dir: got %q want %q", cfg.Paths.InboxDir, wantInbox)
	}
	if cfg.Paths.VaultDir != filepath.Join(tempHome, "voxbox-vault") {
		t.Fatalf("unexpected vault dir: %q", cfg.Paths.VaultDir)
	}
	if cfg.Mode != config.ModeLocal {
		t.Fatalf("expected local mode by default, got %q", cfg.Mode)
	}
	if cfg.Gemini.APIKey != "test-key" {
		t.Fatalf("expected Gemini key from env, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Gemini.Model != config.Default().Gemini.Model {
		t.Fatalf("unexpected Gemini model: %q", cfg.Gemini.Model)
	}
	if len(cfg.Fetch.CaptionLanguages) == 0 || cfg.Fetch.CaptionLanguages[0] != "en" {
		t.Fatalf("unexpected caption languages: %v", cfg.Fetch.CaptionLanguages)
	}
	if !cfg.Tags.Enabled || !cfg.Tags.Learning {
		t.Fatal("expected tagging enabled by default")
	}
	if cfg.Workflow.PollInterval != config.Default().Workflow.PollInterval {
		t.Fatalf("unexpected poll interval: %d", cfg.Workflow.PollInterval)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.InboxDir, cfg.Paths.VaultDir, cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Paths.ArchiveDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "voxbox.toml")

	type payload struct {
		Mode   string `toml:"mode"`
		Gemini struct {
			APIKey string `toml:"api_key"`
			Model  string `toml:"model"`
		} `toml:"gemini"`
		Dropbox struct {
			AppKey    string `toml:"app_key"`
			AppSecret string `toml:"app_secret"`
		} `toml:"dropbox"`
		Workflow struct {
			PollInterval int `toml:"poll_interval"`
			MaxRetries   int `toml:"max_retries"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Mode = "dropbox"
	custom.Gemini.APIKey = "abc123"
	custom.Gemini.Model = "gemini-test"
	custom.Dropbox.AppKey = "app-key"
	custom.Dropbox.AppSecret = "app-secret"
	custom.Workflow.PollInterval = 12
	custom.Workflow.MaxRetries = 5
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Mode != config.ModeDropbox {
		t.Fatalf("expected dropbox mode, got %q", cfg.Mode)
	}
	if cfg.Gemini.Model != "gemini-test" {
		t.Fatalf("expected Gemini model override, got %q", cfg.Gemini.Model)
	}
	if cfg.Workflow.PollInterval != 12 {
		t.Fatalf("expected poll interval 12, got %d", cfg.Workflow.PollInterval)
	}
	if cfg.Workflow.MaxRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", cfg.Workflow.MaxRetries)
	}
	if cfg.Dropbox.SourceFolder != "/voxbox" {
		t.Fatalf("expected default source folder, got %q", cfg.Dropbox.SourceFolder)
	}
}

func TestEnvVarOverridesForSecrets(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "voxbox.toml")

	contents := `
mode = "dropbox"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("DROPBOX_APP_KEY", "env-app-key")
	t.Setenv("DROPBOX_APP_SECRET", "env-app-secret")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gemini.APIKey != "env-gemini" {
		t.Errorf("expected Gemini key from env, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Dropbox.AppKey != "env-app-key" {
		t.Errorf("expected Dropbox app key from env, got %q", cfg.Dropbox.AppKey)
	}
	if cfg.Dropbox.AppSecret != "env-app-secret" {
		t.Errorf("expected Dropbox app secret from env, got %q", cfg.Dropbox.AppSecret)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "mode = \"local\"") {
		t.Fatalf("sample config missing mode line: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StagingDir, "voxbox") {
		t.Fatalf("expected staging dir to contain voxbox, got %q", cfg.Paths.StagingDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Gemini.APIKey = "key"
	cfg.Mode = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown mode")
	}

	cfg = config.Default()
	cfg.Gemini.APIKey = "key"
	cfg.Workflow.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive poll interval")
	}

	cfg = config.Default()
	cfg.Gemini.Enabled = true
	cfg.Gemini.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when summarization enabled without API key")
	}

	cfg = config.Default()
	cfg.Gemini.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled summarization to pass without key: %v", err)
	}

	cfg = config.Default()
	cfg.Gemini.APIKey = "key"
	cfg.Mode = config.ModeDropbox
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for dropbox mode without app credentials")
	}
}

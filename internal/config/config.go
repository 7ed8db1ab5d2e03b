package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Mode selects where job inputs come from.
const (
	ModeLocal   = "local"
	ModeDropbox = "dropbox"
)

// Paths contains directory configuration.
type Paths struct {
	InboxDir   string `toml:"inbox_dir"`
	VaultDir   string `toml:"vault_dir"`
	ArchiveDir string `toml:"archive_dir"`
	StagingDir string `toml:"staging_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	TokensDir  string `toml:"tokens_dir"`
}

// Fetch contains configuration for media and caption acquisition.
type Fetch struct {
	YtDlpBinary      string   `toml:"ytdlp_binary"`
	AudioQuality     string   `toml:"audio_quality"`
	CaptionLanguages []string `toml:"caption_languages"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
}

// Whisper contains configuration for local speech-to-text.
type Whisper struct {
	Binary         string `toml:"binary"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Gemini contains configuration for the summarization service.
type Gemini struct {
	Enabled            bool   `toml:"enabled"`
	APIKey             string `toml:"api_key"`
	Model              string `toml:"model"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	MaxTranscriptChars int    `toml:"max_transcript_chars"`
}

// Tags contains configuration for note tagging and the learned vocabulary.
type Tags struct {
	Enabled    bool `toml:"enabled"`
	Learning   bool `toml:"learning"`
	MaxPerNote int  `toml:"max_per_note"`
	BiasTopN   int  `toml:"bias_top_n"`
}

// Dropbox contains configuration for the remote storage source.
type Dropbox struct {
	AppKey          string   `toml:"app_key"`
	AppSecret       string   `toml:"app_secret"`
	SourceFolder    string   `toml:"source_folder"`
	AllowedAccounts []string `toml:"allowed_accounts"`
}

// OAuth contains configuration for the local authorization endpoint.
type OAuth struct {
	BindHost             string `toml:"bind_host"`
	BindPort             int    `toml:"bind_port"`
	RedirectURI          string `toml:"redirect_uri"`
	RefreshMarginSeconds int    `toml:"refresh_margin_seconds"`
}

// Workflow contains daemon timing and retry configuration.
type Workflow struct {
	PollInterval      int `toml:"poll_interval"`
	MaxRetries        int `toml:"max_retries"`
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for VoxBox.
//
// Configuration sections by subsystem:
//   - Mode: input source selection (local inbox or Dropbox folder)
//   - Paths: inbox, vault, archive, staging, data, log, token directories
//   - Fetch: yt-dlp invocation, audio quality, caption language preference
//   - Whisper: local speech-to-text fallback
//   - Gemini: AI summarization service
//   - Tags: tagging and learned vocabulary behavior
//   - Dropbox: remote source app credentials and account allow-list
//   - OAuth: local authorization endpoint and refresh margin
//   - Workflow: polling interval and retry bounds
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Mode          string        `toml:"mode"`
	Paths         Paths         `toml:"paths"`
	Fetch         Fetch         `toml:"fetch"`
	Whisper       Whisper       `toml:"whisper"`
	Gemini        Gemini        `toml:"gemini"`
	Tags          Tags          `toml:"tags"`
	Dropbox       Dropbox       `toml:"dropbox"`
	OAuth         OAuth         `toml:"oauth"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/voxbox/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/voxbox/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("voxbox.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// VaultDir is created on a best-effort basis so the daemon can run when the
// note store is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	required := []string{c.Paths.StagingDir, c.Paths.DataDir, c.Paths.LogDir}
	if c.Mode == ModeLocal {
		required = append(required, c.Paths.InboxDir, c.Paths.ArchiveDir)
	}
	for _, dir := range required {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.VaultDir) != "" {
		// Best-effort to avoid failing config load when the vault is offline.
		_ = os.MkdirAll(c.Paths.VaultDir, 0o755)
	}
	if c.Mode == ModeDropbox {
		if err := os.MkdirAll(c.Paths.TokensDir, 0o700); err != nil {
			return fmt.Errorf("create token directory %q: %w", c.Paths.TokensDir, err)
		}
	}
	return nil
}

// YtDlpBinary returns the yt-dlp executable name.
func (c *Config) YtDlpBinary() string {
	if strings.TrimSpace(c.Fetch.YtDlpBinary) != "" {
		return c.Fetch.YtDlpBinary
	}
	return "yt-dlp"
}

// WhisperBinary returns the whisper executable name.
func (c *Config) WhisperBinary() string {
	if strings.TrimSpace(c.Whisper.Binary) != "" {
		return c.Whisper.Binary
	}
	return "whisper"
}

// WhisperTimeout returns the speech-to-text time ceiling.
func (c *Config) WhisperTimeout() time.Duration {
	if c.Whisper.TimeoutSeconds > 0 {
		return time.Duration(c.Whisper.TimeoutSeconds) * time.Second
	}
	return 30 * time.Minute
}

// OAuthRedirectURI returns the configured redirect URI, deriving one from the
// bind address when not set explicitly.
func (c *Config) OAuthRedirectURI() string {
	if strings.TrimSpace(c.OAuth.RedirectURI) != "" {
		return c.OAuth.RedirectURI
	}
	return fmt.Sprintf("http://%s:%d/oauth/callback", c.OAuth.BindHost, c.OAuth.BindPort)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

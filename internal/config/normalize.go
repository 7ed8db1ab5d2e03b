package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFetch()
	c.normalizeWhisper()
	c.normalizeGemini()
	c.normalizeTags()
	c.normalizeDropbox()
	c.normalizeOAuth()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if c.Paths.VaultDir, err = expandPath(c.Paths.VaultDir); err != nil {
		return fmt.Errorf("paths.vault_dir: %w", err)
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TokensDir) == "" {
		c.Paths.TokensDir = defaultTokensDir
	}
	if c.Paths.TokensDir, err = expandPath(c.Paths.TokensDir); err != nil {
		return fmt.Errorf("paths.tokens_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFetch() {
	c.Fetch.YtDlpBinary = strings.TrimSpace(c.Fetch.YtDlpBinary)
	c.Fetch.AudioQuality = strings.TrimSpace(c.Fetch.AudioQuality)
	if c.Fetch.AudioQuality == "" {
		c.Fetch.AudioQuality = defaultAudioQuality
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeout
	}
	if len(c.Fetch.CaptionLanguages) == 0 {
		c.Fetch.CaptionLanguages = []string{"en"}
		return
	}
	langs := make([]string, 0, len(c.Fetch.CaptionLanguages))
	seen := make(map[string]struct{}, len(c.Fetch.CaptionLanguages))
	for _, lang := range c.Fetch.CaptionLanguages {
		normalized := strings.ToLower(strings.TrimSpace(lang))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		langs = append(langs, normalized)
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	c.Fetch.CaptionLanguages = langs
}

func (c *Config) normalizeWhisper() {
	c.Whisper.Binary = strings.TrimSpace(c.Whisper.Binary)
	c.Whisper.Model = strings.TrimSpace(c.Whisper.Model)
	if c.Whisper.Model == "" {
		c.Whisper.Model = defaultWhisperModel
	}
	if c.Whisper.TimeoutSeconds <= 0 {
		c.Whisper.TimeoutSeconds = defaultWhisperTimeout
	}
}

func (c *Config) normalizeGemini() {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Gemini.APIKey = strings.TrimSpace(value)
		}
	}
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = defaultGeminiTimeout
	}
	if c.Gemini.MaxTranscriptChars <= 0 {
		c.Gemini.MaxTranscriptChars = defaultMaxTranscriptChars
	}
}

func (c *Config) normalizeTags() {
	if c.Tags.MaxPerNote <= 0 {
		c.Tags.MaxPerNote = defaultMaxTagsPerNote
	}
	if c.Tags.BiasTopN <= 0 {
		c.Tags.BiasTopN = defaultTagBiasTopN
	}
}

func (c *Config) normalizeDropbox() {
	c.Dropbox.AppKey = strings.TrimSpace(c.Dropbox.AppKey)
	if c.Dropbox.AppKey == "" {
		if value, ok := os.LookupEnv("DROPBOX_APP_KEY"); ok {
			c.Dropbox.AppKey = strings.TrimSpace(value)
		}
	}
	c.Dropbox.AppSecret = strings.TrimSpace(c.Dropbox.AppSecret)
	if c.Dropbox.AppSecret == "" {
		if value, ok := os.LookupEnv("DROPBOX_APP_SECRET"); ok {
			c.Dropbox.AppSecret = strings.TrimSpace(value)
		}
	}
	c.Dropbox.SourceFolder = strings.TrimSpace(c.Dropbox.SourceFolder)
	if c.Dropbox.SourceFolder == "" {
		c.Dropbox.SourceFolder = defaultDropboxFolder
	}
	if !strings.HasPrefix(c.Dropbox.SourceFolder, "/") {
		c.Dropbox.SourceFolder = "/" + c.Dropbox.SourceFolder
	}
	accounts := make([]string, 0, len(c.Dropbox.AllowedAccounts))
	for _, account := range c.Dropbox.AllowedAccounts {
		trimmed := strings.TrimSpace(account)
		if trimmed != "" {
			accounts = append(accounts, trimmed)
		}
	}
	c.Dropbox.AllowedAccounts = accounts
}

func (c *Config) normalizeOAuth() {
	c.OAuth.BindHost = strings.TrimSpace(c.OAuth.BindHost)
	if c.OAuth.BindHost == "" {
		c.OAuth.BindHost = defaultOAuthBindHost
	}
	if c.OAuth.BindPort <= 0 {
		c.OAuth.BindPort = defaultOAuthBindPort
	}
	c.OAuth.RedirectURI = strings.TrimSpace(c.OAuth.RedirectURI)
	if c.OAuth.RefreshMarginSeconds <= 0 {
		c.OAuth.RefreshMarginSeconds = defaultRefreshMargin
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

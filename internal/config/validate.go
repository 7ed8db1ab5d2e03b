package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMode(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGemini(); err != nil {
		return err
	}
	if err := c.validateDropbox(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMode() error {
	switch c.Mode {
	case ModeLocal, ModeDropbox:
		return nil
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeLocal, ModeDropbox, c.Mode)
	}
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.VaultDir) == "" {
		return errors.New("paths.vault_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Mode == ModeLocal && strings.TrimSpace(c.Paths.InboxDir) == "" {
		return errors.New("paths.inbox_dir must be set in local mode")
	}
	return nil
}

func (c *Config) validateGemini() error {
	if !c.Gemini.Enabled {
		return nil
	}
	if c.Gemini.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/voxbox/config.toml"
		}
		return fmt.Errorf("gemini.api_key is required when gemini.enabled is true. Set GEMINI_API_KEY env var or edit %s (create with 'voxbox config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateDropbox() error {
	if c.Mode != ModeDropbox {
		return nil
	}
	if c.Dropbox.AppKey == "" {
		return errors.New("dropbox.app_key must be set in dropbox mode (or set DROPBOX_APP_KEY)")
	}
	if c.Dropbox.AppSecret == "" {
		return errors.New("dropbox.app_secret must be set in dropbox mode (or set DROPBOX_APP_SECRET)")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.retry_delay_seconds":  c.Workflow.RetryDelaySeconds,
		"fetch.timeout_seconds":         c.Fetch.TimeoutSeconds,
		"whisper.timeout_seconds":       c.Whisper.TimeoutSeconds,
		"gemini.timeout_seconds":        c.Gemini.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"tags.max_per_note":             c.Tags.MaxPerNote,
	}, map[string]int{
		"workflow.max_retries": c.Workflow.MaxRetries,
	})
}

func ensurePositiveMap(positive map[string]int, nonNegative map[string]int) error {
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	for key, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}

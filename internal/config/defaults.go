package config

const (
	defaultInboxDir           = "~/.local/share/voxbox/inbox"
	defaultVaultDir           = "~/voxbox-vault"
	defaultArchiveDir         = "~/.local/share/voxbox/archive"
	defaultStagingDir         = "~/.local/share/voxbox/staging"
	defaultDataDir            = "~/.local/share/voxbox"
	defaultLogDir             = "~/.local/share/voxbox/logs"
	defaultTokensDir          = "~/.config/voxbox/tokens"
	defaultAudioQuality       = "192K"
	defaultFetchTimeout       = 600
	defaultWhisperModel       = "base"
	defaultWhisperTimeout     = 1800
	defaultGeminiModel        = "gemini-2.0-flash"
	defaultGeminiTimeout      = 120
	defaultMaxTranscriptChars = 120000
	defaultMaxTagsPerNote     = 8
	defaultTagBiasTopN        = 25
	defaultDropboxFolder      = "/voxbox"
	defaultOAuthBindHost      = "127.0.0.1"
	defaultOAuthBindPort      = 8756
	defaultRefreshMargin      = 300
	defaultPollInterval       = 30
	defaultMaxRetries         = 3
	defaultRetryDelay         = 5
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Mode: ModeLocal,
		Paths: Paths{
			InboxDir:   defaultInboxDir,
			VaultDir:   defaultVaultDir,
			ArchiveDir: defaultArchiveDir,
			StagingDir: defaultStagingDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			TokensDir:  defaultTokensDir,
		},
		Fetch: Fetch{
			AudioQuality:     defaultAudioQuality,
			CaptionLanguages: []string{"en"},
			TimeoutSeconds:   defaultFetchTimeout,
		},
		Whisper: Whisper{
			Model:          defaultWhisperModel,
			TimeoutSeconds: defaultWhisperTimeout,
		},
		Gemini: Gemini{
			Enabled:            true,
			Model:              defaultGeminiModel,
			TimeoutSeconds:     defaultGeminiTimeout,
			MaxTranscriptChars: defaultMaxTranscriptChars,
		},
		Tags: Tags{
			Enabled:    true,
			Learning:   true,
			MaxPerNote: defaultMaxTagsPerNote,
			BiasTopN:   defaultTagBiasTopN,
		},
		Dropbox: Dropbox{
			SourceFolder: defaultDropboxFolder,
		},
		OAuth: OAuth{
			BindHost:             defaultOAuthBindHost,
			BindPort:             defaultOAuthBindPort,
			RefreshMarginSeconds: defaultRefreshMargin,
		},
		Workflow: Workflow{
			PollInterval:      defaultPollInterval,
			MaxRetries:        defaultMaxRetries,
			RetryDelaySeconds: defaultRetryDelay,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

const (
	defaultConfigPath            = "~/.config/sendtoonenote/config.toml"
	defaultQueueRoot             = "~/OneNoteHelper"
	defaultStateDir              = "~/.local/share/sendtoonenote"
	defaultImportMode            = "hybrid"
	defaultTextPageLimit         = 200
	defaultImagePageLimit        = 200
	defaultFallbackPageLimit     = 30
	defaultRenderDPI             = 144
	defaultOneNoteBaseURL        = "https://graph.microsoft.com/v1.0/me/onenote"
	defaultOneNoteRequestTimeout = 120
	defaultRedirectURI           = "http://localhost"
	defaultAuthority             = "https://login.microsoftonline.com/common"
	defaultInteractive           = "auto"
	defaultGhostscriptBinary     = "gs"
	defaultGhostscriptTimeout    = 120
	defaultDebounceMS            = 350
	defaultPollIntervalSeconds   = 5
	defaultInitialDelayMS        = 1500
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

var defaultScopes = []string{"Notes.ReadWrite", "User.Read"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			QueueRoot: defaultQueueRoot,
			StateDir:  defaultStateDir,
		},
		Import: Import{
			Mode:              defaultImportMode,
			TextPageLimit:     defaultTextPageLimit,
			ImagePageLimit:    defaultImagePageLimit,
			FallbackPageLimit: defaultFallbackPageLimit,
			RenderDPI:         defaultRenderDPI,
		},
		OneNote: OneNote{
			BaseURL:        defaultOneNoteBaseURL,
			RequestTimeout: defaultOneNoteRequestTimeout,
		},
		Auth: Auth{
			RedirectURI: defaultRedirectURI,
			Authority:   defaultAuthority,
			Scopes:      append([]string(nil), defaultScopes...),
			Interactive: defaultInteractive,
		},
		Ghostscript: Ghostscript{
			Binary:  defaultGhostscriptBinary,
			Timeout: defaultGhostscriptTimeout,
		},
		Watcher: Watcher{
			DebounceMS:          defaultDebounceMS,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			InitialDelayMS:      defaultInitialDelayMS,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			OnFailure:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

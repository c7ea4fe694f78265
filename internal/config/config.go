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

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains queue, state, and log directory configuration.
type Paths struct {
	QueueRoot string `toml:"queue_root"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Import controls how document content is turned into page markup.
type Import struct {
	Mode              string `toml:"mode"`
	TextPageLimit     int    `toml:"text_page_limit"`
	ImagePageLimit    int    `toml:"image_page_limit"`
	FallbackPageLimit int    `toml:"fallback_page_limit"`
	RenderDPI         int    `toml:"render_dpi"`
}

// OneNote contains the upload target and API endpoint settings.
type OneNote struct {
	SectionID      string `toml:"section_id"`
	PageID         string `toml:"page_id"`
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Auth contains the identity provider settings used to obtain bearer tokens.
type Auth struct {
	ClientID    string   `toml:"client_id"`
	RedirectURI string   `toml:"redirect_uri"`
	Authority   string   `toml:"authority"`
	Scopes      []string `toml:"scopes"`
	Interactive string   `toml:"interactive"`
}

// Ghostscript configures the PostScript conversion and page rendering tool.
type Ghostscript struct {
	Binary  string `toml:"binary"`
	Timeout int    `toml:"timeout"`
}

// Watcher contains folder watcher timing.
type Watcher struct {
	DebounceMS          int `toml:"debounce_ms"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	InitialDelayMS      int `toml:"initial_delay_ms"`
}

// Retention controls pruning of archived jobs.
type Retention struct {
	DoneDays int `toml:"done_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnFailure      bool   `toml:"on_failure"`
	OnSuccess      bool   `toml:"on_success"`
}

// API contains the optional HTTP status endpoint configuration.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the ingestion daemon and CLI.
//
// Configuration sections by subsystem:
//   - Paths: queue root, state directory (lock, socket, caches), logs
//   - Import: extraction mode and page caps
//   - OneNote: upload target and API base URL
//   - Auth: identity provider client settings
//   - Ghostscript: PostScript conversion and page rendering
//   - Watcher: debounce and poll timing
//   - Retention: archive pruning
//   - Notifications: ntfy push notification settings
//   - API: optional HTTP status endpoint
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Import        Import        `toml:"import"`
	OneNote       OneNote       `toml:"onenote"`
	Auth          Auth          `toml:"auth"`
	Ghostscript   Ghostscript   `toml:"ghostscript"`
	Watcher       Watcher       `toml:"watcher"`
	Retention     Retention     `toml:"retention"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(resolvedPath)

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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sendtoonenote.toml")
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

// loadDotEnv reads optional .env files beside the config and in the working
// directory. Variables already present in the environment win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

// EnsureDirectories creates the state and log directories. The queue layout is
// owned by the ingest package because it needs special permissions.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "sendtoonenote.lock")
}

// SocketPath returns the control socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "sendtoonenote.sock")
}

// PIDPath returns the file holding the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "sendtoonenote.pid")
}

// TokenCachePath returns the identity cache file path.
func (c *Config) TokenCachePath() string {
	return filepath.Join(c.Paths.StateDir, "token_cache.json")
}

// HistoryPath returns the upload history database path.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// GhostscriptTimeout returns the conversion timeout.
func (c *Config) GhostscriptTimeout() time.Duration {
	return time.Duration(c.Ghostscript.Timeout) * time.Second
}

// RequestTimeout returns the upload client timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.OneNote.RequestTimeout) * time.Second
}

// DebounceWindow returns the watcher debounce window.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Watcher.DebounceMS) * time.Millisecond
}

// PollInterval returns the watcher safety-net poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watcher.PollIntervalSeconds) * time.Second
}

// PollDelay returns how long the watcher waits before the first poll.
func (c *Config) PollDelay() time.Duration {
	return time.Duration(c.Watcher.InitialDelayMS) * time.Millisecond
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

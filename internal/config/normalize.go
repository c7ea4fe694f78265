package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImport()
	c.normalizeOneNote()
	c.normalizeAuth()
	c.normalizeGhostscript()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.QueueRoot) == "" {
		c.Paths.QueueRoot = defaultQueueRoot
	}
	if c.Paths.QueueRoot, err = expandPath(c.Paths.QueueRoot); err != nil {
		return fmt.Errorf("paths.queue_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeImport() {
	c.Import.Mode = strings.ToLower(strings.TrimSpace(c.Import.Mode))
	if c.Import.Mode == "" {
		c.Import.Mode = defaultImportMode
	}
}

func (c *Config) normalizeOneNote() {
	if c.OneNote.SectionID == "" {
		if value, ok := os.LookupEnv("ONENOTE_SECTION_ID"); ok {
			c.OneNote.SectionID = value
		}
	}
	if c.OneNote.PageID == "" {
		if value, ok := os.LookupEnv("ONENOTE_PAGE_ID"); ok {
			c.OneNote.PageID = value
		}
	}
	c.OneNote.SectionID = strings.TrimSpace(c.OneNote.SectionID)
	c.OneNote.PageID = strings.TrimSpace(c.OneNote.PageID)
	c.OneNote.BaseURL = strings.TrimRight(strings.TrimSpace(c.OneNote.BaseURL), "/")
	if c.OneNote.BaseURL == "" {
		c.OneNote.BaseURL = defaultOneNoteBaseURL
	}
}

func (c *Config) normalizeAuth() {
	if c.Auth.ClientID == "" {
		if value, ok := os.LookupEnv("SENDTOONENOTE_CLIENT_ID"); ok {
			c.Auth.ClientID = value
		}
	}
	c.Auth.ClientID = strings.TrimSpace(c.Auth.ClientID)
	c.Auth.RedirectURI = strings.TrimSpace(c.Auth.RedirectURI)
	if c.Auth.RedirectURI == "" {
		c.Auth.RedirectURI = defaultRedirectURI
	}
	c.Auth.Authority = strings.TrimSpace(c.Auth.Authority)
	if c.Auth.Authority == "" {
		c.Auth.Authority = defaultAuthority
	}
	scopes := make([]string, 0, len(c.Auth.Scopes))
	for _, scope := range c.Auth.Scopes {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	if len(scopes) == 0 {
		scopes = append(scopes, defaultScopes...)
	}
	c.Auth.Scopes = scopes
	c.Auth.Interactive = strings.ToLower(strings.TrimSpace(c.Auth.Interactive))
	if c.Auth.Interactive == "" {
		c.Auth.Interactive = defaultInteractive
	}
}

func (c *Config) normalizeGhostscript() {
	c.Ghostscript.Binary = strings.TrimSpace(c.Ghostscript.Binary)
	if c.Ghostscript.Binary == "" {
		c.Ghostscript.Binary = defaultGhostscriptBinary
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
}

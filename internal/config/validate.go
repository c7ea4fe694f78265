package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable. A missing auth.client_id is not
// a validation error: token requests fail per job instead.
func (c *Config) Validate() error {
	if err := c.validateImport(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Retention.DoneDays < 0 {
		return errors.New("retention.done_days must be zero or positive")
	}
	return nil
}

func (c *Config) validateImport() error {
	switch c.Import.Mode {
	case "text", "image", "hybrid":
	default:
		return fmt.Errorf("import.mode: unsupported value %q (want text, image, or hybrid)", c.Import.Mode)
	}
	return ensurePositiveMap(map[string]int{
		"import.text_page_limit":     c.Import.TextPageLimit,
		"import.image_page_limit":    c.Import.ImagePageLimit,
		"import.fallback_page_limit": c.Import.FallbackPageLimit,
		"import.render_dpi":          c.Import.RenderDPI,
	})
}

func (c *Config) validateEndpoints() error {
	if err := ensureHTTPURL("onenote.base_url", c.OneNote.BaseURL); err != nil {
		return err
	}
	if err := ensureHTTPURL("auth.authority", c.Auth.Authority); err != nil {
		return err
	}
	return ensureHTTPURL("auth.redirect_uri", c.Auth.RedirectURI)
}

func (c *Config) validateAuth() error {
	switch c.Auth.Interactive {
	case "auto", "browser", "terminal", "none":
		return nil
	default:
		return fmt.Errorf("auth.interactive: unsupported value %q (want auto, browser, terminal, or none)", c.Auth.Interactive)
	}
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"onenote.request_timeout":       c.OneNote.RequestTimeout,
		"ghostscript.timeout":           c.Ghostscript.Timeout,
		"watcher.debounce_ms":           c.Watcher.DebounceMS,
		"watcher.poll_interval_seconds": c.Watcher.PollIntervalSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

func ensureHTTPURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

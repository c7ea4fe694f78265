package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/ipc"
)

const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries the persistent flags and the lazily loaded
// configuration shared by every subcommand.
type commandContext struct {
	socket     string
	configFile string

	load sync.Once
	cfg  *config.Config
	err  error
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.configFile)
}

// ensureConfig loads the configuration once and creates its state and log
// directories.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.load.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.err = err
			return
		}
		c.cfg = cfg
	})
	return c.cfg, c.err
}

// configValue returns the loaded configuration or nil. Commands with offline
// fallbacks use it so a broken config does not hide daemon state.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.socket); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	fallback := config.Default()
	if expanded, err := config.ExpandPath(fallback.SocketPath()); err == nil {
		return expanded
	}
	return filepath.Join(os.TempDir(), "sendtoonenote.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err == nil {
		return client, nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return nil, fmt.Errorf("daemon not reachable at %s; start the daemon with `sendtoonenote start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return nil, fmt.Errorf("daemon at %s refused the connection; it may have exited without removing its socket", socket)
	}
	return nil, fmt.Errorf("connect to daemon at %s: %w", socket, err)
}

func skipsConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

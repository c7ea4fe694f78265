package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand(ctx), newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath, ctx.configPath())
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("inspect %s: %w", target, statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set onenote.section_id and auth.client_id (or SENDTOONENOTE_CLIENT_ID), then run `sendtoonenote login`.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Where to write the file (defaults to --config or the standard location)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// initTarget picks --path, then --config, then the default location.
func initTarget(flagPath, configPath string) (string, error) {
	for _, candidate := range []string{flagPath, configPath} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return config.ExpandPath(candidate)
		}
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	var online, strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and check the environment",
		Long: "Load the configuration, then check directories, the queue layout,\n" +
			"Ghostscript and the sign-in cache. --online also probes the notebook API.",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			fmt.Fprintln(out)

			checks := append(preflight.RunAll(cmd.Context(), cfg), preflight.CheckAuth(cfg))
			if online {
				checks = append(checks, preflight.CheckEndpoint(cmd.Context(), cfg.OneNote.BaseURL))
			}
			lines := make([]string, 0, len(checks))
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusWarn
				}
				lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			printSection(out, "Environment", colorize, lines)

			if failed := preflight.Failed(checks); strict && len(failed) > 0 {
				return fmt.Errorf("%d environment check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "Also check that the notebook API is reachable")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any check fails")
	return cmd
}

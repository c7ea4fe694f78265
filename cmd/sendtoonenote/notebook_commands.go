package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/auth"
	"github.com/lad75020/SendToOneNote/internal/daemonrun"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/onenote"
)

// apiSession builds a token provider and client for commands that call the
// notebook API directly.
func (c *commandContext) apiSession(interactive string) (*auth.Provider, *onenote.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	local := *cfg
	if interactive != "" {
		local.Auth.Interactive = interactive
	}
	tokens, err := daemonrun.NewTokenProvider(&local, logger, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return tokens, daemonrun.NewClient(&local, tokens, logger), nil
}

func newNotebookCommands(ctx *commandContext) []*cobra.Command {
	var asJSON bool

	notebooksCmd := &cobra.Command{
		Use:   "notebooks",
		Short: "List notebooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := ctx.apiSession("")
			if err != nil {
				return err
			}
			notebooks, err := client.Notebooks(cmd.Context())
			if err != nil {
				return err
			}
			return printEntities(cmd, "Notebook", notebooks, asJSON)
		},
	}

	sectionsCmd := &cobra.Command{
		Use:   "sections <notebook-id>",
		Short: "List the sections of a notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := ctx.apiSession("")
			if err != nil {
				return err
			}
			sections, err := client.Sections(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printEntities(cmd, "Section", sections, asJSON)
		},
	}

	pagesCmd := &cobra.Command{
		Use:   "pages <section-id>",
		Short: "List the pages of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := ctx.apiSession("")
			if err != nil {
				return err
			}
			pages, err := client.Pages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printEntities(cmd, "Page", pages, asJSON)
		},
	}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "List notebooks with their sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := ctx.apiSession("")
			if err != nil {
				return err
			}
			tree, err := client.Tree(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, tree)
			}
			if len(tree) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notebooks found")
				return nil
			}
			rows := make([][]string, 0, len(tree))
			for _, nb := range tree {
				rows = append(rows, []string{nb.Notebook.DisplayName, "", nb.Notebook.ID})
				for _, section := range nb.Sections {
					rows = append(rows, []string{"", section.DisplayName, section.ID})
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Notebook", "Section", "ID"}, rows))
			return nil
		},
	}

	cmds := []*cobra.Command{notebooksCmd, sectionsCmd, pagesCmd, treeCmd}
	for _, cmd := range cmds {
		cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	}
	return cmds
}

func printEntities(cmd *cobra.Command, kind string, entities []onenote.Entity, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, entities)
	}
	if len(entities) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %ss found\n", strings.ToLower(kind))
		return nil
	}
	rows := make([][]string, 0, len(entities))
	for _, entity := range entities {
		rows = append(rows, []string{entity.DisplayName, entity.ID})
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{kind, "ID"}, rows))
	return nil
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the account in the token cache",
		Long: "Runs token acquisition with interactive sign-in allowed so the account lands in the\n" +
			"persistent token cache. Run it once before starting the daemon headless.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, _, err := ctx.apiSession(mode)
			if err != nil {
				return err
			}
			tok, err := tokens.Acquire(cmd.Context())
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Signed in")
			if !tok.ExpiresOn.IsZero() {
				fmt.Fprintf(out, "Token valid until %s\n", tok.ExpiresOn.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(out, "Token cache: %s\n", cfg.TokenCachePath())
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "auto", "Sign-in presentation: auto, browser or terminal")
	return cmd
}

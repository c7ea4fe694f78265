package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/daemonrun"
	"github.com/lad75020/SendToOneNote/internal/extract"
	"github.com/lad75020/SendToOneNote/internal/logging"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var mode, title string
	var showHTML bool
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show the page a document would produce, without uploading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			local := *cfg
			if mode != "" {
				local.Import.Mode = mode
			}
			ex, err := daemonrun.NewExtractor(&local, logger)
			if err != nil {
				return err
			}

			path := args[0]
			if strings.TrimSpace(title) == "" {
				base := filepath.Base(path)
				title = strings.TrimSuffix(base, filepath.Ext(base))
			}
			src, cleanup, err := ex.Prepare(cmd.Context(), path, title)
			if err != nil {
				return err
			}
			defer cleanup()
			content, err := ex.Extract(cmd.Context(), src)
			if err != nil {
				return err
			}
			document, err := ex.BuildDocument(content)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showHTML {
				fmt.Fprintln(out, document)
			} else {
				markdown, err := markdownConverter().ConvertString(document)
				if err != nil {
					return fmt.Errorf("render markdown: %w", err)
				}
				fmt.Fprintln(out, strings.TrimSpace(markdown))
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Mode: %s, pages read: %d", content.Mode, content.PageCount)
			if content.Fallback {
				fmt.Fprint(out, ", image fallback")
			}
			if content.Placeholder {
				fmt.Fprint(out, ", text replaced by placeholder")
			}
			fmt.Fprintln(out)
			if len(content.Parts) > 0 {
				fmt.Fprint(out, renderTable(
					[]string{"Part", "Kind", "Page", "Type", "Bytes"},
					attachmentRows(content.Parts),
					2, 4,
				))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Override import.mode (text, image or hybrid)")
	cmd.Flags().StringVar(&title, "title", "", "Page title (defaults to the file name)")
	cmd.Flags().BoolVar(&showHTML, "html", false, "Print the page markup instead of Markdown")
	return cmd
}

func markdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

func attachmentRows(parts []extract.ContentPart) [][]string {
	rows := make([][]string, 0, len(parts))
	for _, part := range parts {
		rows = append(rows, []string{
			part.Token,
			part.Kind.String(),
			strconv.Itoa(part.Page),
			part.MIMEType,
			strconv.Itoa(len(part.Data)),
		})
	}
	return rows
}

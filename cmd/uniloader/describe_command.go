package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"uniloader/internal/logging"
	"uniloader/internal/media"
	"uniloader/internal/metadata"
	"uniloader/internal/services/ytdlp"
)

func newDescribeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "describe <url>",
		Short: "List the available variants for a URL",
		Long: "Describe runs yt-dlp locally and prints the normalized descriptor. " +
			"It does not need a running daemon.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ytdlp.New(cfg.Tools.YtDlpBinary,
				ytdlp.WithMetadataTimeout(cfg.MetadataTimeout()),
				ytdlp.WithMaxOutputBytes(cfg.Tools.MaxMetadataBytes),
			)
			if err != nil {
				return err
			}
			normalizer := metadata.NewNormalizer(client, logging.NewNop())
			desc, err := normalizer.Describe(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				if msg := metadataMessage(err); msg != "" {
					return fmt.Errorf("describe: %s", msg)
				}
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, desc)
			}
			printDescriptor(cmd.OutOrStdout(), desc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the descriptor as JSON")
	return cmd
}

func metadataMessage(err error) string {
	var extractErr *metadata.ExtractionError
	if errors.As(err, &extractErr) {
		return extractErr.UserMessage()
	}
	return ""
}

func printDescriptor(out io.Writer, desc media.Descriptor) {
	platform := cases.Title(language.Und).String(desc.Platform)
	fmt.Fprintf(out, "Title:    %s\n", desc.Title)
	fmt.Fprintf(out, "Author:   %s\n", desc.Author)
	fmt.Fprintf(out, "Platform: %s\n", platform)
	fmt.Fprintf(out, "Duration: %s\n", desc.Duration)
	kinds := make([]string, 0, len(desc.AvailableKinds))
	for _, k := range desc.AvailableKinds {
		kinds = append(kinds, k.String())
	}
	fmt.Fprintf(out, "Kinds:    %s\n", strings.Join(kinds, ", "))

	rows := make([][]string, 0, len(desc.VideoVariants)+len(desc.AudioVariants))
	for _, v := range desc.VideoVariants {
		rows = append(rows, []string{media.KindVideo.String(), v.VariantID, v.Label, v.ApproximateSize})
	}
	for _, v := range desc.AudioVariants {
		rows = append(rows, []string{media.KindAudio.String(), v.VariantID, v.Label, v.ApproximateSize})
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No downloadable variants reported.")
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"Kind", "Variant", "Label", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight},
	))
}

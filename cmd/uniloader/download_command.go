package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"uniloader/internal/api"
	"uniloader/internal/config"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var variant string
	var outputDir string
	var noSave bool

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Retrieve a variant through the daemon and save it locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ctx.apiAddress()
			if err != nil {
				return err
			}
			client, err := api.NewClient(addr, nil)
			if err != nil {
				return err
			}

			resp, err := client.Download(cmd.Context(), api.DownloadRequest{
				URL:       strings.TrimSpace(args[0]),
				VariantID: strings.TrimSpace(variant),
				MediaKind: strings.TrimSpace(kind),
			})
			if err != nil {
				return wrapDaemonError(err, addr)
			}

			out := cmd.OutOrStdout()
			if noSave {
				fmt.Fprintf(out, "Artifact ready: %s (expires %s)\n", resp.DownloadURL, resp.ExpiresAt.Local().Format("15:04:05"))
				return nil
			}

			dir, err := config.ExpandPath(outputDir)
			if err != nil {
				return fmt.Errorf("resolve output directory: %w", err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			tmp, err := os.CreateTemp(dir, ".uniloader-*")
			if err != nil {
				return fmt.Errorf("create temp file: %w", err)
			}
			tmpPath := tmp.Name()
			defer os.Remove(tmpPath)

			name, err := client.FetchFile(cmd.Context(), resp.DownloadURL, tmp)
			closeErr := tmp.Close()
			if err != nil {
				return wrapDaemonError(err, addr)
			}
			if closeErr != nil {
				return fmt.Errorf("write download: %w", closeErr)
			}
			name = safeFileName(name)
			if name == "" {
				name = safeFileName(resp.Filename)
			}
			if name == "" {
				name = resp.JobID
			}
			target := filepath.Join(dir, name)
			if err := os.Rename(tmpPath, target); err != nil {
				return fmt.Errorf("save download: %w", err)
			}
			fmt.Fprintf(out, "Saved %s (%s)\n", target, formatBytes(resp.SizeBytes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "video", "Media kind to produce (video or audio)")
	cmd.Flags().StringVar(&variant, "variant", "", "Variant id from `uniloader describe` (default: best available)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to save the file into")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Only prepare the artifact and print its URL")
	return cmd
}

// unsafeFileChars are replaced in names suggested by the daemon.
var unsafeFileChars = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// safeFileName reduces a suggested attachment name to a single safe path
// element. It returns "" when nothing usable remains.
func safeFileName(name string) string {
	name = strings.TrimSpace(unsafeFileChars.Replace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	return strings.TrimLeft(name, ".")
}

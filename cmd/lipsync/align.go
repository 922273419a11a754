package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/lipsync"
)

func newAlignCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "align <file>",
		Short: "Print the mouth cue timeline for an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, logs, err := opts.load()
			if err != nil {
				return err
			}
			defer logs.Close()

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}

			extractor := lipsync.NewExtractor(cfg.Lipsync, logs.Zerolog())
			id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			format := audio.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))

			tl, err := extractor.ExtractFormat(cmd.Context(), id, data, format)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(tl, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

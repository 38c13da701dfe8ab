package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/segstream/internal/frame"
	"github.com/dgnsrekt/segstream/internal/journal"
)

func journalCmd() *cobra.Command {
	var failures bool

	cmd := &cobra.Command{
		Use:   "journal [PATH]",
		Short: "Summarize an outcome journal",
		Long: `Read a compressed outcome journal and print per-status totals.

PATH defaults to journal.path, or <output_dir>/outcomes.jsonl.zst.

Examples:
  segstream-processor journal
  segstream-processor journal --failures ./output_frames/outcomes.jsonl.zst`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.JournalPath()
			if len(args) == 1 {
				path = args[0]
			}

			outcomes, err := journal.Read(path)
			if err != nil {
				logger.Error("failed to read journal", zap.String("path", path), zap.Error(err))
				return err
			}

			succeeded, failed := frame.Tally(outcomes)
			fmt.Printf("Journal:   %s\n", path)
			fmt.Printf("Frames:    %d\n", len(outcomes))
			fmt.Printf("Succeeded: %d\n", succeeded)
			fmt.Printf("Failed:    %d\n", failed)

			if failures {
				for _, o := range outcomes {
					if !o.OK() {
						fmt.Printf("  frame %06d: %s\n", o.Seq, o.Error)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failures, "failures", false, "list every failed frame")

	return cmd
}

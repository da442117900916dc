package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/capacity-engine/api"
	"github.com/warp/capacity-engine/factory"
	"github.com/warp/capacity-engine/schedule"
)

type projectOutput struct {
	Title      string               `json:"title"`
	Portfolio  string               `json:"portfolio"`
	Scheduled  bool                 `json:"scheduled"`
	Slices     []api.BucketSliceDTO `json:"slices"`
	TotalWeeks float64              `json:"total_weeks"`
}

func newProjectCmd() *cobra.Command {
	var schemeName string

	cmd := &cobra.Command{
		Use:   "project <commitments.yaml>",
		Short: "Project commitment activities into quarter or month buckets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, err := schedule.ParseScheme(schemeName)
			if err != nil {
				return err
			}
			commitments, notices, err := readCommitmentsFile(factory.NewDocumentFactory(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			printNotices(cmd, notices)

			out := make([]projectOutput, 0, len(commitments))
			for _, c := range commitments {
				slices := schedule.ProjectIntoBuckets(c, scheme)
				out = append(out, projectOutput{
					Title:      c.Title,
					Portfolio:  string(c.Portfolio),
					Scheduled:  c.Scheduled(),
					Slices:     api.ToBucketSliceDTOs(slices),
					TotalWeeks: schedule.TotalWeeks(slices).InexactFloat64(),
				})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&schemeName, "scheme", "fiscal", "Bucket scheme: fiscal, calendar or month")
	return cmd
}

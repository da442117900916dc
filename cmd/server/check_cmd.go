package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/capacity-engine/api"
	"github.com/warp/capacity-engine/capacity"
	"github.com/warp/capacity-engine/factory"
)

type checkOutput struct {
	Proposal   string                  `json:"proposal"`
	AsOf       string                  `json:"as_of"`
	Validation *api.ValidationResultDTO `json:"validation"`
}

func newCheckCmd() *cobra.Command {
	var (
		governancePath  string
		commitmentsPath string
		asOfDate        string
		strict          bool
	)

	cmd := &cobra.Command{
		Use:   "check <proposal.yaml>",
		Short: "Run one admission check over local governance and commitment files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := factory.NewDocumentFactory()

			data, err := os.ReadFile(governancePath)
			if err != nil {
				return err
			}
			cfg, notices, err := f.ParseGovernance(data)
			if err != nil {
				return fmt.Errorf("%s: %w", governancePath, err)
			}
			printNotices(cmd, notices)
			if warn := cfg.QuotaWarning(); warn != "" {
				cmd.PrintErrln("warning:", warn)
			}

			commitments, notices, err := readCommitmentsFile(f, commitmentsPath)
			if err != nil {
				return fmt.Errorf("%s: %w", commitmentsPath, err)
			}
			printNotices(cmd, notices)

			data, err = os.ReadFile(args[0])
			if err != nil {
				return err
			}
			proposal, err := f.ParseProposal(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			asOf, err := capacity.ParseDate(asOfDate)
			if err != nil || asOf == nil {
				return fmt.Errorf("invalid --as-of %q", asOfDate)
			}
			proposal.AsOf = *asOf

			res, err := capacity.ValidateCapacity(proposal, commitments, cfg)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), checkOutput{
				Proposal:   args[0],
				AsOf:       asOfDate,
				Validation: api.ToValidationResultDTO(res),
			}); err != nil {
				return err
			}
			if strict && !res.Approved() {
				return &capacity.AdmissionError{Result: res}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&governancePath, "governance", "", "Governance document: roles, team, quotas (required)")
	cmd.Flags().StringVar(&commitmentsPath, "commitments", "", "Existing commitments document")
	cmd.Flags().StringVar(&asOfDate, "as-of", capacity.Day(time.Now()).Format(capacity.DateLayout), "Reference date for proposals without dates (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the proposal is rejected")
	_ = cmd.MarkFlagRequired("governance")
	return cmd
}

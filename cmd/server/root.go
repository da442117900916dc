package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/capacity-engine/capacity"
	"github.com/warp/capacity-engine/factory"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "capacity-engine",
		Short:        "Capacity governance and admission control engine",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd(), newCheckCmd(), newProjectCmd())
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printNotices reports clamped inputs on stderr so stdout stays valid JSON.
func printNotices(cmd *cobra.Command, notices []error) {
	for _, n := range notices {
		cmd.PrintErrln("notice:", n)
	}
}

func readCommitmentsFile(f *factory.DocumentFactory, path string) ([]capacity.Commitment, []error, error) {
	if path == "" {
		return nil, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return f.ParseCommitments(data)
}

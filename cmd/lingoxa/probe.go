package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Ping every configured model and report which ones answer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runProbe(ctx context.Context, out io.Writer) error {
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown(context.Background()) //nolint:errcheck

	results := application.Router().TestAllServices(ctx)
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	healthy := 0
	for _, id := range ids {
		status := "unreachable"
		if results[id] {
			status = "ok"
			healthy++
		}
		fmt.Fprintf(out, "%-20s %s\n", id, status)
	}
	if healthy == 0 {
		return errors.New("no configured model answered")
	}
	return nil
}

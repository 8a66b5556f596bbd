package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elitevogue/newsbot/internal/app"
	"github.com/elitevogue/newsbot/internal/config"
	"github.com/elitevogue/newsbot/internal/storage"
)

var (
	statsJSON   bool
	statsRecent int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print publication counters per source and category",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print counters as JSON")
	statsCmd.Flags().IntVar(&statsRecent, "recent", 10, "Recently published fingerprints to list (postgres only)")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer stores.Close()

	counts := stores.Stats.LoadStats(ctx)
	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}
	if err := printCounts(out, counts); err != nil {
		return err
	}

	if pg, ok := stores.Seen.(*storage.PostgresStore); ok && statsRecent > 0 {
		rows, err := pg.Recent(ctx, statsRecent)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nRecently published:")
		for _, r := range rows {
			fmt.Fprintf(out, "  %s  %s\n", r.RecordedAt.Format("2006-01-02 15:04"), r.Hash)
		}
	}
	return nil
}

func printCounts(w io.Writer, counts map[string]int) error {
	if len(counts) == 0 {
		_, err := fmt.Fprintln(w, "No publications recorded yet.")
		return err
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%d\n", k, counts[k])
	}
	return tw.Flush()
}

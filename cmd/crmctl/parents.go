package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/spf13/cobra"
)

var parentsCmd = &cobra.Command{
	Use:   "parents",
	Short: "Search, count, export and import parents",
}

var (
	searchQuery  string
	searchStatus string
	searchStage  string
	searchPage   int
	searchSize   int
	exportOut    string
)

var parentsSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "List one page of parents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := apiContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		f := parent.DefaultFilters()
		f.Query = searchQuery
		f.Status = parent.Status(searchStatus)
		f.Stage = parent.Stage(searchStage)
		f.PerPage = searchSize
		f = f.Normalize()
		if err := f.Validate(); err != nil {
			return err
		}

		page, err := client.Parents().Search(ctx, f, searchPage)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tSTATUS\tSTAGE\tSCORE")
		for _, p := range page.Parents {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Email, p.Status, p.Stage, p.LeadScore)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d, %d parents\n", page.Page, max(page.Pages, 1), page.Total)
		return nil
	},
}

var parentsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the dashboard counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := apiContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		st, err := client.Parents().Stats(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "total\t%d\n", st.TotalParents)
		fmt.Fprintf(w, "enquiries (7d)\t%d\n", st.RecentEnquiries7d)
		fmt.Fprintf(w, "high risk\t%d\n", st.HighRiskCount)
		fmt.Fprintf(w, "avg lead score\t%.1f\n", st.AverageLeadScore)
		fmt.Fprintf(w, "conversion\t%.1f%%\n", st.ConversionRate)
		for _, k := range sortedKeys(st.ByStatus) {
			fmt.Fprintf(w, "status %s\t%d\n", k, st.ByStatus[k])
		}
		return w.Flush()
	},
}

var parentsExportCmd = &cobra.Command{
	Use:   "export [id...]",
	Short: "Export parents as CSV, all of them when no ids are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDArgs(args)
		if err != nil {
			return err
		}
		client, ctx, cancel, err := apiContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		data, err := client.Parents().Export(ctx, ids)
		if err != nil {
			return err
		}
		if exportOut == "" || exportOut == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(exportOut, data, 0o600)
	},
}

var parentsImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import parents from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		client, ctx, cancel, err := apiContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		res, err := client.Parents().Import(ctx, filepath.Base(args[0]), f)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "imported %d, skipped %d\n", res.Imported, res.Skipped)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  row %d: %s\n", e.Row, e.Message)
		}
		return nil
	},
}

func init() {
	parentsSearchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search text")
	parentsSearchCmd.Flags().StringVar(&searchStatus, "status", "", "Filter by status")
	parentsSearchCmd.Flags().StringVar(&searchStage, "stage", "", "Filter by stage")
	parentsSearchCmd.Flags().IntVar(&searchPage, "page", 1, "Page number")
	parentsSearchCmd.Flags().IntVar(&searchSize, "per-page", parent.DefaultPerPage, "Rows per page")
	parentsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "Output file")

	parentsCmd.AddCommand(parentsSearchCmd, parentsStatsCmd, parentsExportCmd, parentsImportCmd)
}

func parseIDArgs(args []string) ([]int64, error) {
	var ids []int64
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid parent id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

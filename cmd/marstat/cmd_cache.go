package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marstat/internal/format"
	"marstat/internal/store"
)

var cacheFlags struct {
	db          string
	datasetHash string
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the fit cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached fits, newest first",
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached fit",
	RunE:  runCacheClear,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Remove cached fits of one dataset",
	RunE:  runCacheInvalidate,
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheFlags.db, "cache-db", store.DefaultDBPath, "Fit cache database path")
	cacheInvalidateCmd.Flags().StringVar(&cacheFlags.datasetHash, "dataset-hash", "", "SHA-256 of the dataset file (required)")
	_ = cacheInvalidateCmd.MarkFlagRequired("dataset-hash")

	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd, cacheInvalidateCmd)
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cacheFlags.db)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No cached fits.")
		return nil
	}
	tbl := format.NewTable(format.ASCII)
	tbl.Header("Key", "Dataset", "Seed", "Run", "Created", "Bytes")
	for _, e := range entries {
		tbl.Row(format.Truncate(e.Key.ID(), 15), format.Truncate(e.Key.DatasetHash, 15),
			e.Key.Seed, e.RunID, e.CreatedAt, e.Size)
	}
	tbl.Footer("", "", "", "", fmt.Sprintf("%d entries", len(entries)), "")
	tbl.RightAlignFrom(6, 6)
	fmt.Fprintln(out, tbl.String())
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cacheFlags.db)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Clear()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached fits.\n", n)
	return nil
}

func runCacheInvalidate(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cacheFlags.db)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.InvalidateDataset(cacheFlags.datasetHash)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached fits for dataset %s.\n", n, format.Truncate(cacheFlags.datasetHash, 15))
	return nil
}

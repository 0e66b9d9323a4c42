package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/devblac/mintwatch/internal/config"
	"github.com/devblac/mintwatch/internal/storage"
	"github.com/spf13/cobra"
)

var (
	dbPath       string
	exportFormat string
	exportLimit  int
	exportOut    string
)

func init() {
	for _, c := range []*cobra.Command{stateCmd, exportCmd} {
		c.Flags().StringVar(&dbPath, "db", "", "Journal path (defaults to global.db_path from the config)")
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv or json")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "Maximum number of cycles to export")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to file instead of stdout")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded cycles as csv or json",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(exportFormat)
		if format != "csv" && format != "json" {
			return fmt.Errorf("unsupported format: %s", exportFormat)
		}

		path, err := journalPath()
		if err != nil {
			return err
		}
		store, err := storage.Open(path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cycles, err := store.RecentCycles(cmd.Context(), exportLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}

		if format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cycles)
		}
		return writeCyclesCSV(out, cycles)
	},
}

var cycleColumns = []string{
	"id", "started_at", "status", "contract", "collection_name", "sample_count", "price",
	"method", "gate", "reason", "detail", "txhash", "block_number", "error",
}

func writeCyclesCSV(w io.Writer, cycles []storage.CycleRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cycleColumns); err != nil {
		return err
	}
	for _, c := range cycles {
		row := []string{
			c.ID,
			c.StartedAt.UTC().Format(time.RFC3339),
			c.Status,
			c.Contract,
			c.CollectionName,
			strconv.Itoa(c.SampleCount),
			c.Price,
			c.Method,
			c.Gate,
			c.Reason,
			c.Detail,
			c.TxHash,
			strconv.FormatUint(c.BlockNumber, 10),
			c.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// journalPath prefers --db so reading the journal does not need wallet secrets.
func journalPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", fmt.Errorf("load config (or pass --db): %w", err)
	}
	return cfg.Global.DBPath, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-menu-tracker/internal/services"
)

type importOptions struct {
	files []string
	dir   string
	glob  string
	json  bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import snapshot files; one failing file never stops the others",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.files = append(opts.files, args...)
			return runImport(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.files, "file", "f", nil, "snapshot file (repeatable)")
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "directory of snapshot files")
	cmd.Flags().StringVar(&opts.glob, "pattern", "*.json", "file pattern used with --dir")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print results as JSON")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, opts importOptions) error {
	paths, err := collectPaths(opts)
	if err != nil {
		return withCode(exitUsage, err)
	}

	a, err := newApp(ctx, "import")
	if err != nil {
		return err
	}
	defer a.close()

	items := a.importer.ImportFiles(ctx, paths)
	if err := report(out, items, opts.json); err != nil {
		return err
	}
	failed := services.Failed(items)
	a.log.Info().Int("files", len(items)).Int("failed", failed).Msg("import finished")
	if failed > 0 {
		return withCode(exitPartial, fmt.Errorf("%d of %d snapshots failed", failed, len(items)))
	}
	return nil
}

// collectPaths merges explicit files with the sorted matches under dir.
func collectPaths(opts importOptions) ([]string, error) {
	paths := append([]string(nil), opts.files...)
	if opts.dir != "" {
		matches, err := filepath.Glob(filepath.Join(opts.dir, opts.glob))
		if err != nil {
			return nil, fmt.Errorf("--pattern: %w", err)
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, errors.New("nothing to import: pass files, --file or --dir")
	}
	return paths, nil
}

type fileResult struct {
	File      string `json:"file"`
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Products  int    `json:"products,omitempty"`
	NewPrices int    `json:"new_prices,omitempty"`
	Warnings  int    `json:"warnings,omitempty"`
	Error     string `json:"error,omitempty"`
}

func report(out io.Writer, items []services.BatchItem, asJSON bool) error {
	rows := make([]fileResult, len(items))
	for i, it := range items {
		r := fileResult{File: it.Source}
		switch {
		case it.Err != nil:
			r.Status = "failed"
			r.Error = it.Err.Error()
			var abort *services.TransactionAbortError
			if errors.As(it.Err, &abort) {
				r.SessionID = abort.SessionID
			}
		default:
			r.Status = it.Result.Status
			r.SessionID = it.Result.SessionID
			r.Products = it.Result.Products
			r.NewPrices = it.Result.NewPrices
			r.Warnings = len(it.Result.Warnings)
		}
		rows[i] = r
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	for _, r := range rows {
		line := fmt.Sprintf("%-9s %s", r.Status, r.File)
		if r.Error != "" {
			line += "  " + strings.ReplaceAll(r.Error, "\n", " ")
		} else {
			line += fmt.Sprintf("  session=%s products=%d new_prices=%d warnings=%d", r.SessionID, r.Products, r.NewPrices, r.Warnings)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/ragvisor/internal/rag"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var (
		url       string
		folder    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Embed documents into the vector store",
		Long: `Embed PDFs, text files or a web page into the vector store.

Exactly one of --url, --folder or a list of files must be given. Folders are
scanned for top-level *.pdf and *.txt files. --overwrite clears the
collection first.

Examples:
  ragvisor ingest report.pdf notes.txt
  ragvisor ingest --folder ./docs --overwrite
  ragvisor ingest --url https://example.com/article`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildIngestRequest(url, folder, args)
			if err != nil {
				return err
			}
			req.Overwrite = overwrite
			req.Progress = func(done, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rEmbedded %d/%d chunks", done, total)
				if done == total {
					fmt.Fprintln(cmd.ErrOrStderr())
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.pipeline.Ingest(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "web page to ingest")
	cmd.Flags().StringVar(&folder, "folder", "", "folder of PDFs and text files to ingest")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "clear the collection before storing")
	cmd.MarkFlagsMutuallyExclusive("url", "folder")
	return cmd
}

// buildIngestRequest turns the command line into a request. Files are read
// eagerly so a missing path fails before any model is loaded.
func buildIngestRequest(url, folder string, files []string) (rag.IngestRequest, error) {
	set := 0
	for _, ok := range []bool{url != "", folder != "", len(files) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return rag.IngestRequest{}, errors.New("specify exactly one of --url, --folder or files")
	}

	switch {
	case url != "":
		return rag.IngestRequest{Kind: rag.KindURL, URL: url}, nil
	case folder != "":
		return rag.IngestRequest{Kind: rag.KindFolder, Folder: folder}, nil
	}

	uploads := make([]rag.File, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return rag.IngestRequest{}, fmt.Errorf("reading %s: %w", path, err)
		}
		uploads = append(uploads, rag.File{Name: filepath.Base(path), Data: data})
	}
	return rag.IngestRequest{Kind: rag.KindUpload, Files: uploads}, nil
}

// printReport writes a human-readable summary. It fails when nothing was
// stored and at least one source failed.
func printReport(w io.Writer, report *rag.IngestReport) error {
	for _, s := range report.Sources {
		line := fmt.Sprintf("  %s: %d chunks", s.Source, s.Chunks)
		if s.Truncated {
			line += " (content truncated)"
		}
		fmt.Fprintln(w, line)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  %s: %s\n", e.Source, e.Message)
	}
	fmt.Fprintf(w, "Embedded %d chunks from %d sources\n", report.ChunksEmbedded, len(report.Sources))

	if report.ChunksEmbedded == 0 && len(report.Errors) > 0 {
		return fmt.Errorf("no chunks embedded: %d sources failed", len(report.Errors))
	}
	return nil
}

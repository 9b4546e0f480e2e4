package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var (
		cacheOnly bool
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored chunks or cached answers",
		Long: `Delete every chunk in the configured collection.

Cached answers live inside a running server, so --cache-only asks the
server at --server to drop them instead of touching the collection.

Examples:
  ragvisor clear
  ragvisor clear --cache-only --server http://127.0.0.1:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cacheOnly {
				if err := clearRemoteCache(serverURL); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Query cache cleared")
				return nil
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

			if err := a.pipeline.ClearCollection(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collection %s cleared\n", cfg.VectorStore.Collection)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "clear only the query cache of a running server")
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "ragvisor server URL for --cache-only")
	return cmd
}

// clearRemoteCache sends DELETE /api/v1/cache to a running server.
func clearRemoteCache(serverURL string) error {
	url := strings.TrimRight(serverURL, "/") + "/api/v1/cache"
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

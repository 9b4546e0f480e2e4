// Package main implements the ragvisor CLI.
//
// ragvisor ingests PDFs, text files and web pages into a vector store and
// answers questions over them with retrieval-augmented generation.
//
// Usage:
//
//	# Write a starter config and download the ONNX runtime
//	ragvisor init
//
//	# Ingest documents, then ask
//	ragvisor ingest --folder ./docs
//	ragvisor ask "What does the report conclude?"
//
//	# Serve the HTTP API
//	GROQ_API_KEY=gsk_... ragvisor serve
package main

import (
	"fmt"
	"os"

	"github.com/fyrsmithlabs/ragvisor/internal/config"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragvisor",
		Short: "Ask questions about your documents",
		Long: `ragvisor answers questions about your PDFs, text files and web pages.

Documents are split into overlapping chunks, embedded and stored in a
vector store. Questions retrieve the closest chunks and a language model
answers from them.

Configuration is read from ~/.config/ragvisor/config.yaml and can be
overridden with environment variables such as GROQ_API_KEY or
QUERY_TOP_K.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/ragvisor/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newAskCmd(),
		newClearCmd(),
		newWatchCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

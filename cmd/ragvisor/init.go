package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fyrsmithlabs/ragvisor/internal/config"
	"github.com/fyrsmithlabs/ragvisor/internal/embeddings"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		force    bool
		skipONNX bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and download dependencies",
		Long: `Initialize ragvisor.

Writes a commented config file to ~/.config/ragvisor/config.yaml (unless one
exists) and downloads the ONNX runtime required for local embeddings with
FastEmbed into ~/.config/ragvisor/lib/. If the ONNX_PATH environment
variable is set, that library is used instead.

Examples:
  ragvisor init
  ragvisor init --force       # rewrite config and re-download the runtime
  ragvisor init --skip-onnx   # when using a TEI embedding server`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			path, err := writeConfigTemplate(force)
			switch {
			case errors.Is(err, os.ErrExist):
				fmt.Fprintf(out, "Config already exists at: %s\n", path)
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "Wrote config to: %s\n", path)
			}

			if skipONNX {
				return nil
			}
			return installONNX(cmd, embeddings.NewONNXInstaller(""), force, out)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite the config and re-download the ONNX runtime")
	cmd.Flags().BoolVar(&skipONNX, "skip-onnx", false, "do not download the ONNX runtime")
	return cmd
}

// writeConfigTemplate writes config.Template to the default path with 0600
// permissions. Without force an existing file is kept and os.ErrExist returned.
func writeConfigTemplate(force bool) (string, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return "", err
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "", err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return path, err
		}
		return path, fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, config.Template); err != nil {
		return path, fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

func installONNX(cmd *cobra.Command, installer *embeddings.ONNXInstaller, force bool, out io.Writer) error {
	if !force {
		if path := installer.LibraryPath(); path != "" {
			fmt.Fprintf(out, "ONNX runtime already installed at: %s\n", path)
			fmt.Fprintln(out, "Use --force to re-download.")
			return nil
		}
	}

	fmt.Fprintf(out, "Downloading ONNX runtime v%s...\n", installer.Version)
	if err := installer.Download(cmd.Context()); err != nil {
		return fmt.Errorf("failed to download ONNX runtime: %w", err)
	}

	path := installer.LibraryPath()
	if path == "" {
		return fmt.Errorf("download completed but library not found")
	}
	fmt.Fprintf(out, "Successfully installed ONNX runtime to: %s\n", path)
	return nil
}

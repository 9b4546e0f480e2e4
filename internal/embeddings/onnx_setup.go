package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultONNXRuntimeVersion matches the onnxruntime_go version pulled in by fastembed-go.
const DefaultONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform indicates the current OS/arch has no ONNX runtime release.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

const onnxReleaseURLTemplate = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

// releaseArchives maps GOOS/GOARCH to ONNX release archive names.
var releaseArchives = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

// ONNXInstaller downloads and locates the ONNX runtime shared library
// required by the fastembed provider.
type ONNXInstaller struct {
	// Dir is where the library is installed.
	// Default: ~/.config/ragvisor/lib
	Dir string
	// Version of the runtime to download.
	Version string
	// BaseURL overrides the GitHub release URL template (tests).
	BaseURL string

	client *http.Client
	goos   string
	goarch string
}

// NewONNXInstaller creates an installer for the current platform.
func NewONNXInstaller(dir string) *ONNXInstaller {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".config", "ragvisor", "lib")
	}
	return &ONNXInstaller{
		Dir:     dir,
		Version: DefaultONNXRuntimeVersion,
		client:  http.DefaultClient,
		goos:    runtime.GOOS,
		goarch:  runtime.GOARCH,
	}
}

// LibraryName returns the shared library file name for the installer's OS.
func (i *ONNXInstaller) LibraryName() string {
	if i.goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// archive returns the release archive platform name.
func (i *ONNXInstaller) archive() (string, error) {
	name, ok := releaseArchives[i.goos+"/"+i.goarch]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, i.goos, i.goarch)
	}
	return name, nil
}

// downloadURL returns the archive URL for the configured version.
func (i *ONNXInstaller) downloadURL(platform string) string {
	if i.BaseURL != "" {
		return fmt.Sprintf("%s/onnxruntime-%s-%s.tgz", strings.TrimSuffix(i.BaseURL, "/"), platform, i.Version)
	}
	return fmt.Sprintf(onnxReleaseURLTemplate, i.Version, platform, i.Version)
}

// LibraryPath returns the library location, checking ONNX_PATH first and then
// the install directory. It returns "" when neither exists.
func (i *ONNXInstaller) LibraryPath() string {
	if envPath := os.Getenv("ONNX_PATH"); envPath != "" {
		return envPath
	}
	managed := filepath.Join(i.Dir, i.LibraryName())
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// Ensure returns the library path, downloading the runtime when it is missing,
// and exports ONNX_PATH for fastembed-go.
func (i *ONNXInstaller) Ensure(ctx context.Context) (string, error) {
	path := i.LibraryPath()
	if path == "" {
		if err := i.Download(ctx); err != nil {
			return "", err
		}
		path = i.LibraryPath()
		if path == "" {
			return "", fmt.Errorf("onnx runtime downloaded but %s not found in %s", i.LibraryName(), i.Dir)
		}
	}
	if err := os.Setenv("ONNX_PATH", path); err != nil {
		return "", fmt.Errorf("setting ONNX_PATH: %w", err)
	}
	return path, nil
}

// Download fetches the release archive and extracts its lib/ directory into Dir.
func (i *ONNXInstaller) Download(ctx context.Context) error {
	platform, err := i.archive()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(i.Dir, 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.downloadURL(platform), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading onnx runtime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading onnx runtime: status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, i.Version)
	if err := i.extract(resp.Body, prefix); err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}
	return nil
}

// extract copies regular files and symlinks under prefix into Dir.
func (i *ONNXInstaller) extract(r io.Reader, prefix string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	libName := i.LibraryName()
	found := false
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, prefix) || header.Typeflag == tar.TypeDir {
			continue
		}

		filename := filepath.Base(name)
		dest := filepath.Join(i.Dir, filename)

		switch header.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(header.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			continue
		}

		if filename == libName || strings.HasPrefix(filename, libName+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return out.Close()
}

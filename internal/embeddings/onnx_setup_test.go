package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstaller(t *testing.T, goos, goarch string) *ONNXInstaller {
	t.Helper()
	t.Setenv("ONNX_PATH", "")
	i := NewONNXInstaller(t.TempDir())
	i.goos = goos
	i.goarch = goarch
	return i
}

func buildArchive(t *testing.T, prefix string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     prefix + name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestONNXInstaller_Archive(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"linux", "amd64", "linux-x64"},
		{"linux", "arm64", "linux-aarch64"},
		{"darwin", "amd64", "osx-x86_64"},
		{"darwin", "arm64", "osx-arm64"},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := testInstaller(t, tt.goos, tt.goarch).archive()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := testInstaller(t, "windows", "amd64").archive()
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestONNXInstaller_LibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", testInstaller(t, "linux", "amd64").LibraryName())
	assert.Equal(t, "libonnxruntime.dylib", testInstaller(t, "darwin", "arm64").LibraryName())
}

func TestONNXInstaller_LibraryPathPrefersEnv(t *testing.T) {
	i := testInstaller(t, "linux", "amd64")
	assert.Empty(t, i.LibraryPath())

	t.Setenv("ONNX_PATH", "/opt/onnx/libonnxruntime.so")
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", i.LibraryPath())
}

func TestONNXInstaller_Download(t *testing.T) {
	i := testInstaller(t, "linux", "amd64")
	prefix := "onnxruntime-linux-x64-" + i.Version + "/lib/"
	archive := buildArchive(t, prefix, map[string]string{
		"libonnxruntime.so":        "binary",
		"libonnxruntime.so.1.23.0": "binary",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/onnxruntime-linux-x64-"+i.Version+".tgz", r.URL.Path)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()
	i.BaseURL = srv.URL

	path, err := i.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(i.Dir, "libonnxruntime.so"), path)
	assert.Equal(t, path, os.Getenv("ONNX_PATH"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))
}

func TestONNXInstaller_DownloadMissingLibrary(t *testing.T) {
	i := testInstaller(t, "linux", "amd64")
	archive := buildArchive(t, "onnxruntime-linux-x64-"+i.Version+"/lib/", map[string]string{
		"README": "no library here",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()
	i.BaseURL = srv.URL

	err := i.Download(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")
}

func TestONNXInstaller_DownloadHTTPError(t *testing.T) {
	i := testInstaller(t, "linux", "amd64")
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	i.BaseURL = srv.URL

	err := i.Download(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

package loader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePages returns fixed page texts.
type fakePages struct {
	pages []string
	err   error
}

func (f fakePages) Pages(_ io.ReaderAt, _ int64) ([]string, error) {
	return f.pages, f.err
}

func TestPDF_SkipsEmptyPages(t *testing.T) {
	l := NewPDF(WithPageExtractor(fakePages{pages: []string{"page one", "   \n", "page three"}}))

	unit, err := l.LoadBytes(context.Background(), "doc.pdf", []byte("%PDF-fake"))
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", unit.Source)
	assert.Equal(t, "page one\npage three", unit.Text)
	assert.False(t, unit.Truncated)
}

func TestPDF_NoTextIsLoadError(t *testing.T) {
	l := NewPDF(WithPageExtractor(fakePages{pages: []string{"", " "}}))

	_, err := l.LoadBytes(context.Background(), "scan.pdf", []byte("x"))
	assert.ErrorIs(t, err, ErrLoad)
}

func TestPDF_ExtractorErrorIsLoadError(t *testing.T) {
	l := NewPDF(WithPageExtractor(fakePages{err: errors.New("bad xref")}))

	_, err := l.LoadBytes(context.Background(), "broken.pdf", []byte("x"))
	assert.ErrorIs(t, err, ErrLoad)
	assert.Contains(t, err.Error(), "bad xref")
}

func TestPDF_RejectsNonPDFBytes(t *testing.T) {
	_, err := NewPDF().LoadBytes(context.Background(), "notes.pdf", []byte("just some text, not a pdf"))
	assert.ErrorIs(t, err, ErrLoad)
}

func TestPDF_LoadFileUsesBaseName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-fake"), 0o600))

	l := NewPDF(WithPageExtractor(fakePages{pages: []string{"content"}}))
	unit, err := l.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", unit.Source)
}

func TestText_Load(t *testing.T) {
	t.Run("reads file content", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("line one\nline two"), 0o600))

		unit, err := NewText().LoadFile(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", unit.Source)
		assert.Equal(t, "line one\nline two", unit.Text)
	})

	t.Run("missing file is load error", func(t *testing.T) {
		_, err := NewText().LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
		assert.ErrorIs(t, err, ErrLoad)
	})

	t.Run("invalid utf8 is load error", func(t *testing.T) {
		_, err := NewText().LoadBytes(context.Background(), "bin.txt", []byte{0xff, 0xfe, 0x00})
		assert.ErrorIs(t, err, ErrLoad)
	})
}

func TestWeb_ExtractsVisibleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Guide</title><style>p{}</style></head>
<body>
<header>Site header</header>
<nav>Menu</nav>
<p>Retrieval augmented generation.</p>
<script>var x = 1;</script>
<noscript>enable js</noscript>
<form>Sign up</form>
<p>Second paragraph.</p>
<footer>Copyright</footer>
</body></html>`))
	}))
	defer srv.Close()

	unit, err := NewWeb(WebConfig{}, zap.NewNop()).Load(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, srv.URL, unit.Source)
	assert.Equal(t, "Guide\nRetrieval augmented generation.\nSecond paragraph.", unit.Text)
	for _, removed := range []string{"Site header", "Menu", "var x", "enable js", "Sign up", "Copyright"} {
		assert.NotContains(t, unit.Text, removed)
	}
}

func TestWeb_NotFoundIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWeb(WebConfig{}, nil).Load(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestWeb_NetworkFailureIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewWeb(WebConfig{}, nil).Load(context.Background(), addr)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestWeb_RejectsUnsupportedScheme(t *testing.T) {
	_, err := NewWeb(WebConfig{}, nil).Load(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, ErrFetch)
}

func TestWeb_TruncatesLongContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 150)))
	}))
	defer srv.Close()

	unit, err := NewWeb(WebConfig{MaxChars: 100}, nil).Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, unit.Truncated)
	assert.Len(t, unit.Text, 100)
}

func TestWebConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name        string
		in          WebConfig
		wantTimeout time.Duration
		wantMax     int
	}{
		{"zero values", WebConfig{}, 10 * time.Second, 10000},
		{"clamps low timeout", WebConfig{Timeout: time.Second}, 5 * time.Second, 10000},
		{"clamps high timeout", WebConfig{Timeout: time.Minute}, 10 * time.Second, 10000},
		{"keeps explicit values", WebConfig{Timeout: 7 * time.Second, MaxChars: 50}, 7 * time.Second, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.ApplyDefaults()
			assert.Equal(t, tt.wantTimeout, cfg.Timeout)
			assert.Equal(t, tt.wantMax, cfg.MaxChars)
		})
	}
}

func TestScanFolder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.pdf", "c.md", "D.PDF"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.txt"), 0o700))

	files, err := ScanFolder(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "D.PDF"),
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.txt"),
	}, files)

	_, err = ScanFolder(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrLoad)
}

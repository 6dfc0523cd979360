package fileutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilenameFromDisposition(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`attachment; filename="report.pdf"`, "report.pdf"},
		{`attachment; filename=data.bin`, "data.bin"},
		{`inline`, ""},
		{"", ""},
		// Path components are stripped.
		{`attachment; filename="../../etc/passwd"`, "passwd"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FilenameFromDisposition(tc.in), "disposition %q", tc.in)
	}
}

func TestFilenameFromURL(t *testing.T) {
	require.Equal(t, "file.tar.gz", FilenameFromURL("https://example.com/downloads/file.tar.gz"))
	require.Equal(t, "file.bin", FilenameFromURL("https://example.com/file.bin?token=abc"))
	require.Equal(t, "", FilenameFromURL("https://example.com/"))
	require.Equal(t, "", FilenameFromURL("https://example.com"))
}

func TestResolveOutputPathExplicitFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "out.bin")

	got, err := ResolveOutputPath(context.Background(), http.DefaultClient, "https://example.com/x", target)
	require.NoError(t, err)
	require.Equal(t, target, got)
	// Parent directory is created.
	require.DirExists(t, filepath.Join(dir, "nested"))
}

func TestResolveOutputPathDirectoryUsesServerName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Disposition", `attachment; filename="named-by-server.zip"`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	got, err := ResolveOutputPath(context.Background(), srv.Client(), srv.URL+"/ignored", dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "named-by-server.zip"), got)
}

func TestResolveOutputPathDirectoryFallsBackToURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	dir := t.TempDir()
	got, err := ResolveOutputPath(context.Background(), srv.Client(), srv.URL+"/pkg/asset.tar.gz", dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "asset.tar.gz"), got)
}

func TestResolveOutputPathNoName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := ResolveOutputPath(context.Background(), srv.Client(), srv.URL+"/", t.TempDir())
	require.ErrorIs(t, err, ErrNoFilename)
}

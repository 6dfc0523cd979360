// Package fileutil resolves the user-supplied output location to the
// concrete file path a download writes to.
package fileutil

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNoFilename indicates that neither the server nor the URL yields a file
// name, so the caller must supply a full output path.
var ErrNoFilename = errors.New("unable to determine a file name, specify a full output path")

// ResolveOutputPath turns the user-supplied output into a concrete file
// path. An empty output downloads into the working directory; an existing
// directory (or a path with a trailing separator) gets a file name derived
// from the server or the URL; anything else is taken as the target file,
// with parent directories created as needed.
func ResolveOutputPath(ctx context.Context, client *http.Client, rawURL, output string) (string, error) {
	if output == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		output = cwd + string(os.PathSeparator)
	}

	isDir := strings.HasSuffix(output, "/") || strings.HasSuffix(output, string(os.PathSeparator))
	if !isDir {
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			isDir = true
		}
	}

	if isDir {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory %s: %w", output, err)
		}
		name := FilenameFromServer(ctx, client, rawURL)
		if name == "" {
			name = FilenameFromURL(rawURL)
		}
		if name == "" {
			return "", ErrNoFilename
		}
		return filepath.Join(output, name), nil
	}

	if parent := filepath.Dir(output); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory %s: %w", parent, err)
		}
	}
	return output, nil
}

// FilenameFromServer asks the server for a name via a HEAD request's
// Content-Disposition header. It returns "" when the server offers none or
// the request fails; name resolution always has the URL path as fallback.
func FilenameFromServer(ctx context.Context, client *http.Client, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return ""
	}
	res, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer res.Body.Close()
	return FilenameFromDisposition(res.Header.Get("Content-Disposition"))
}

// FilenameFromDisposition extracts the filename parameter from a
// Content-Disposition header value, "" when absent.
func FilenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return ""
	}
	// Strip any directory components a hostile server might smuggle in.
	name := filepath.Base(filepath.Clean(params["filename"]))
	if name == "." || name == string(os.PathSeparator) {
		return ""
	}
	return name
}

// FilenameFromURL derives a name from the last URL path segment, "" when
// the path has none.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return ""
	}
	return name
}

package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/docker/go-units"
)

// stream performs a plain sequential download, used when the total size is
// unknown. No sidecar is written and resuming is not possible; an
// interrupted stream leaves a truncated file that the next invocation
// overwrites from scratch.
func (d *Downloader) stream(ctx context.Context, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{StatusCode: res.StatusCode, Status: res.Status}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output %s: %w", outputPath, err)
	}
	defer f.Close()

	d.progress.Start(-1)
	written, err := io.Copy(f, progressReader{r: res.Body, p: d.progress})
	if err != nil {
		return fmt.Errorf("streaming %s: %w", url, err)
	}
	d.progress.Finish()
	d.log.WithField("url", url).
		Infof("download complete, %s streamed", units.HumanSize(float64(written)))
	return nil
}

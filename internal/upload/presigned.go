package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/specialistvlad/stepship/internal/ctxlog"
)

// ContentType is the media type of every artifact.
const ContentType = "application/zip"

// progressReader reports the integer percentage of bytes read. Reports are
// monotone and deduplicated.
type progressReader struct {
	r     io.Reader
	total int64

	mu   sync.Mutex
	read int64
	last int
	fn   func(int)
}

func newProgressReader(r io.Reader, total int64, fn func(int)) *progressReader {
	return &progressReader{r: r, total: total, last: -1, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.add(int64(n))
	}
	return n, err
}

func (p *progressReader) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.read += n
	pct := 100
	if p.total > 0 {
		pct = int(p.read * 100 / p.total)
	}
	p.report(pct)
}

func (p *progressReader) report(pct int) {
	pct = min(max(pct, 0), 100)
	if pct <= p.last {
		return
	}
	p.last = pct
	if p.fn != nil {
		p.fn(pct)
	}
}

// complete reports 100 if it was not reported yet.
func (p *progressReader) complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report(100)
}

// putFile uploads the file at path to a presigned URL.
func putFile(ctx context.Context, client *http.Client, url, path string, onProgress func(int)) error {
	logger := ctxlog.FromContext(ctx).With("artifact", filepath.Base(path))

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact '%s': %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", path, err)
	}

	body := newProgressReader(file, stat.Size(), onProgress)
	body.report(0)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	req.ContentLength = stat.Size()

	logger.Debug("Uploading artifact.", "size", stat.Size())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload failed with status: %s", resp.Status)
	}
	body.complete()

	logger.Debug("Artifact uploaded.", "status", resp.Status)
	return nil
}

// Package upload transfers build artifacts to the control plane.
//
// Each artifact is announced to the control plane, which answers with a
// presigned URL, and then PUT to that URL. All artifacts of a build are
// uploaded concurrently; the first failure cancels the rest.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/specialistvlad/stepship/internal/cloudapi"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/listener"
	"github.com/specialistvlad/stepship/internal/manifest"
	"golang.org/x/sync/errgroup"
)

// MaxSize is the largest artifact the control plane accepts.
const MaxSize int64 = 1000 * 1024 * 1024

// ErrTooLarge is returned for artifacts above MaxSize. Nothing is sent for
// them.
var ErrTooLarge = errors.New("artifact exceeds the upload size limit")

// Presigner hands out presigned upload URLs. *cloudapi.Client implements it.
type Presigner interface {
	RequestUpload(ctx context.Context, req cloudapi.UploadRequest) (*cloudapi.UploadResult, error)
}

// Uploader uploads artifacts from a build output directory.
type Uploader struct {
	presigner Presigner
	http      *http.Client
	distDir   string
	token     string
}

// New returns an Uploader for the deployment identified by token. A nil
// httpClient means http.DefaultClient.
func New(p Presigner, httpClient *http.Client, distDir, token string) *Uploader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Uploader{presigner: p, http: httpClient, distDir: distDir, token: token}
}

// Upload sends one artifact. name is its slash-separated path inside the
// output directory and doubles as the remote original name.
func (u *Uploader) Upload(ctx context.Context, name string, onProgress func(int)) error {
	path := filepath.Join(u.distDir, filepath.FromSlash(name))
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat artifact %s: %w", name, err)
	}
	if stat.Size() > MaxSize {
		return fmt.Errorf("%s is %s, limit is %s: %w",
			name, humanize.IBytes(uint64(stat.Size())), humanize.IBytes(uint64(MaxSize)), ErrTooLarge)
	}

	res, err := u.presigner.RequestUpload(ctx, cloudapi.UploadRequest{
		DeploymentToken: u.token,
		OriginalName:    name,
		Size:            stat.Size(),
		Mimetype:        ContentType,
	})
	if err != nil {
		return err
	}
	if err := putFile(ctx, u.http, res.FileInfo.PresignedURL, path, onProgress); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// UploadArtifacts uploads every step bundle and router of m concurrently,
// reporting to l. The failing artifact gets its error event; the others are
// cancelled.
func (u *Uploader) UploadArtifacts(ctx context.Context, m *manifest.File, l listener.UploadListener) error {
	if l == nil {
		l = listener.Nop{}
	}
	logger := ctxlog.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)

	for stepPath, cfg := range m.Steps {
		g.Go(func() error {
			l.StepUploadStart(stepPath, cfg)
			err := u.Upload(gctx, stepPath, func(p int) {
				l.StepUploadProgress(stepPath, cfg, p)
			})
			if err != nil {
				if !cancelledBySibling(gctx, err) {
					l.StepUploadError(stepPath, cfg, err)
				}
				return err
			}
			l.StepUploadEnd(stepPath, cfg)
			return nil
		})
	}
	for language, routerPath := range m.Routers {
		g.Go(func() error {
			l.RouteUploadStart(routerPath, language)
			err := u.Upload(gctx, routerPath, func(p int) {
				l.RouteUploadProgress(routerPath, language, p)
			})
			if err != nil {
				if !cancelledBySibling(gctx, err) {
					l.RouteUploadError(routerPath, language, err)
				}
				return err
			}
			l.RouteUploadEnd(routerPath, language)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Debug("Artifacts uploaded.", "steps", len(m.Steps), "routers", len(m.Routers))
	return nil
}

// cancelledBySibling reports whether err is only the cancellation caused by
// another artifact failing first.
func cancelledBySibling(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

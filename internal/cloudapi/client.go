// Package cloudapi is the HTTP client for the deployment control plane.
package cloudapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/manifest"
	"resty.dev/v3"
)

const (
	DefaultBaseURL = "https://api.stepship.dev"
	DefaultTimeout = 30 * time.Second

	createDeploymentPath = "/v1/deployments"
	uploadPath           = "/v1/deployments/upload"
	startDeploymentPath  = "/v1/deployments/start"
)

// CreateDeploymentRequest opens a new deployment.
type CreateDeploymentRequest struct {
	APIKey        string `json:"apiKey"`
	VersionName   string `json:"versionName"`
	EnvironmentID string `json:"environmentId,omitempty"`
	ProjectID     string `json:"projectId,omitempty"`
}

// CreateDeploymentResult identifies the created deployment. The token
// authorizes the upload and start calls.
type CreateDeploymentResult struct {
	DeploymentID    string `json:"deploymentId"`
	DeploymentToken string `json:"deploymentToken"`
	EnvironmentName string `json:"environmentName"`
	ProjectName     string `json:"projectName"`
	VersionName     string `json:"versionName"`
}

// UploadRequest asks for a presigned URL for one artifact.
type UploadRequest struct {
	DeploymentToken string `json:"deploymentToken"`
	OriginalName    string `json:"originalName"`
	Size            int64  `json:"size"`
	Mimetype        string `json:"mimetype"`
}

// FileInfo describes where an artifact must be uploaded.
type FileInfo struct {
	PresignedURL string `json:"presignedUrl"`
}

// UploadResult is the response to an UploadRequest.
type UploadResult struct {
	FileInfo FileInfo `json:"fileInfo"`
}

// StartDeploymentRequest starts a deployment once every artifact is uploaded.
type StartDeploymentRequest struct {
	DeploymentToken string            `json:"deploymentToken"`
	EnvVars         map[string]string `json:"envVars"`
	Steps           manifest.Steps    `json:"steps"`
	Streams         manifest.Streams  `json:"streams"`
	Routers         manifest.Routers  `json:"routers"`
}

// APIError is a non-2xx response from the control plane.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Message())
}

// Message extracts a human readable message from the response body. JSON
// bodies with a "message" or "error" field are unwrapped.
func (e *APIError) Message() string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if msg := strings.TrimSpace(e.Body); msg != "" {
		return msg
	}
	return http.StatusText(e.StatusCode)
}

// Client talks to the control plane. It must be closed after use.
type Client struct {
	rc *resty.Client
}

// Option configures a Client.
type Option func(*resty.Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(rc *resty.Client) { rc.SetTimeout(d) }
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(rc *resty.Client) { rc.SetHeader("User-Agent", ua) }
}

// New returns a client for the control plane at baseURL.
func New(baseURL string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(DefaultTimeout).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{rc: rc}
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.rc.Close()
}

// CreateDeployment opens a deployment.
func (c *Client) CreateDeployment(ctx context.Context, req CreateDeploymentRequest) (*CreateDeploymentResult, error) {
	var out CreateDeploymentResult
	if err := c.post(ctx, createDeploymentPath, req, &out); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}
	return &out, nil
}

// RequestUpload returns the presigned URL for one artifact.
func (c *Client) RequestUpload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	var out UploadResult
	if err := c.post(ctx, uploadPath, req, &out); err != nil {
		return nil, fmt.Errorf("request upload of %s: %w", req.OriginalName, err)
	}
	if out.FileInfo.PresignedURL == "" {
		return nil, fmt.Errorf("request upload of %s: response carries no presigned URL", req.OriginalName)
	}
	return &out, nil
}

// StartDeployment starts the deployment described by req.
func (c *Client) StartDeployment(ctx context.Context, req StartDeploymentRequest) error {
	if err := c.post(ctx, startDeploymentPath, req, nil); err != nil {
		return fmt.Errorf("start deployment: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	r := c.rc.R().SetContext(ctx).SetBody(body)
	if out != nil {
		r.SetResult(out)
	}
	res, err := r.Post(path)
	if err != nil {
		return err
	}
	logger.Debug("Control plane call.", "method", http.MethodPost, "path", path, "status", res.StatusCode(), "duration", time.Since(started).String())

	if res.IsError() {
		return &APIError{
			Method:     http.MethodPost,
			Path:       path,
			StatusCode: res.StatusCode(),
			Body:       res.String(),
		}
	}
	return nil
}

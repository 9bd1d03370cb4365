// Package research is the HTTP transport for the research backend: job
// submission, status fetches, job history and artifact downloads.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiranshivaraju/trialscope/pkg/apipath"
	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// DefaultAPIKeyHeader is the header the backend reads the static API key from.
const DefaultAPIKeyHeader = "X-API-Key"

const tracerName = "github.com/kiranshivaraju/trialscope/internal/research"

// Client is the interface for talking to the research backend.
type Client interface {
	Submit(ctx context.Context, molecule, prompt string) (string, error)
	Status(ctx context.Context, jobID string) (*models.StatusResponse, error)
	ListJobs(ctx context.Context) ([]models.JobSummary, error)
	Download(ctx context.Context, jobID, kind string) (*Artifact, error)
}

// Artifact is an open download stream. The caller must close Body.
type Artifact struct {
	Kind          string
	Filename      string
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}

// HTTPClient implements Client over the backend's JSON API.
// It is safe for concurrent use.
type HTTPClient struct {
	baseURL      string
	apiKeyHeader string
	apiKey       string
	client       *http.Client
	streams      *http.Client
	paths        apipath.Builder
	tracer       trace.Tracer
	logger       *slog.Logger
}

// NewHTTPClient creates a new research backend client. The API key is sent in
// apiKeyHeader on every request; an empty header name selects
// DefaultAPIKeyHeader. timeout bounds whole JSON calls; for artifact
// downloads it only bounds the wait for response headers.
func NewHTTPClient(baseURL, apiKeyHeader, apiKey string, timeout time.Duration) *HTTPClient {
	if apiKeyHeader == "" {
		apiKeyHeader = DefaultAPIKeyHeader
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &HTTPClient{
		baseURL:      baseURL,
		apiKeyHeader: apiKeyHeader,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: timeout},
		streams:      &http.Client{Transport: transport},
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
	}
}

// WithLogger returns the client with logger attached.
func (c *HTTPClient) WithLogger(logger *slog.Logger) *HTTPClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *HTTPClient) Submit(ctx context.Context, molecule, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "research.submit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("research.molecule", molecule)))
	defer span.End()

	body, err := json.Marshal(models.SubmitRequest{Molecule: molecule, Prompt: prompt})
	if err != nil {
		return "", endSpan(span, fmt.Errorf("encoding submit request: %w", err))
	}

	resp, err := c.do(ctx, c.client, "submit", http.MethodPost, c.paths.Submit(), bytes.NewReader(body))
	if err != nil {
		return "", endSpan(span, err)
	}
	defer resp.Body.Close()

	var submitResp models.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", endSpan(span, &TransportError{Op: "submit", StatusCode: resp.StatusCode, Err: ErrMalformedResponse, Cause: err})
	}
	if submitResp.JobID == "" {
		return "", endSpan(span, &TransportError{Op: "submit", StatusCode: resp.StatusCode, Err: ErrMalformedResponse,
			Cause: fmt.Errorf("response carries no job_id")})
	}

	span.SetAttributes(attribute.String("research.job_id", submitResp.JobID))
	return submitResp.JobID, nil
}

func (c *HTTPClient) Status(ctx context.Context, jobID string) (*models.StatusResponse, error) {
	ctx, span := c.tracer.Start(ctx, "research.status",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("research.job_id", jobID)))
	defer span.End()

	resp, err := c.do(ctx, c.client, "status", http.MethodGet, c.paths.Status(jobID), nil)
	if err != nil {
		return nil, endSpan(span, err)
	}
	defer resp.Body.Close()

	var statusResp models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, endSpan(span, &TransportError{Op: "status", StatusCode: resp.StatusCode, Err: ErrMalformedResponse, Cause: err})
	}
	if statusResp.JobID == "" {
		statusResp.JobID = jobID
	}
	if statusResp.Status != models.StatusCompleted && statusResp.CanonicalResult != nil {
		c.logger.Warn("dropping canonical result on non-completed job",
			"job_id", jobID, "status", statusResp.Status)
		statusResp.CanonicalResult = nil
	}

	span.SetAttributes(attribute.String("research.status", statusResp.Status.String()))
	return &statusResp, nil
}

func (c *HTTPClient) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	ctx, span := c.tracer.Start(ctx, "research.list_jobs", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	resp, err := c.do(ctx, c.client, "list jobs", http.MethodGet, c.paths.Jobs(), nil)
	if err != nil {
		return nil, endSpan(span, err)
	}
	defer resp.Body.Close()

	var jobs []models.JobSummary
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, endSpan(span, &TransportError{Op: "list jobs", StatusCode: resp.StatusCode, Err: ErrMalformedResponse, Cause: err})
	}
	if jobs == nil {
		jobs = []models.JobSummary{}
	}

	span.SetAttributes(attribute.Int("research.job_count", len(jobs)))
	return jobs, nil
}

func (c *HTTPClient) Download(ctx context.Context, jobID, kind string) (*Artifact, error) {
	kind, err := apipath.NormalizeArtifact(kind)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "research.download",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("research.job_id", jobID),
			attribute.String("research.artifact", kind),
		))

	resp, err := c.do(ctx, c.streams, "download", http.MethodGet, c.paths.Download(jobID, kind), nil)
	if err != nil {
		err = endSpan(span, err)
		span.End()
		return nil, err
	}

	filename := apipath.ArtifactFilename(jobID, kind)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := safeFilename(params["filename"]); name != "" {
			filename = name
		}
	}

	return &Artifact{
		Kind:          kind,
		Filename:      filename,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Body:          &spanBody{ReadCloser: resp.Body, span: span},
	}, nil
}

// do sends one request through hc and returns the response when the status
// is 2xx. The caller closes the body.
func (c *HTTPClient) do(ctx context.Context, hc *http.Client, op, method, path string, body io.Reader) (*http.Response, error) {
	u, err := c.paths.Resolve(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(ctx, httpReq, body != nil)

	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, classifyError(op, err)
	}

	c.logger.Debug("research backend call",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		te := &TransportError{Op: op, StatusCode: resp.StatusCode, Err: ErrBackendStatus}
		if len(detail) > 0 {
			te.Cause = fmt.Errorf("%s", bytes.TrimSpace(detail))
		}
		return nil, te
	}

	return resp, nil
}

func (c *HTTPClient) setHeaders(ctx context.Context, req *http.Request, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// safeFilename strips any directory part from a backend-supplied filename.
// It returns "" when nothing usable is left.
func safeFilename(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	switch name {
	case ".", "..", string(filepath.Separator):
		return ""
	}
	return name
}

// endSpan records err on span and returns it unchanged.
func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// spanBody ends the download span once the caller closes the stream.
type spanBody struct {
	io.ReadCloser
	span trace.Span
}

func (b *spanBody) Close() error {
	defer b.span.End()
	return b.ReadCloser.Close()
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adityatewari181/krishi-bandhu/internal/query"
	"github.com/Adityatewari181/krishi-bandhu/internal/response"
)

const (
	defaultTimeout           = 5 * time.Minute
	defaultTextRetryAttempts = 2
	defaultTextRetryDelay    = 2 * time.Second
)

// TokenSource supplies the bearer token for backend requests.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource holding a fixed token.
type StaticToken string

// Token returns the token, or an error when it is empty.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", fmt.Errorf("no backend token configured")
	}
	return string(t), nil
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. "https://api.example.com".
	BaseURL string

	// Timeout bounds one attempt end to end. Answer generation can run
	// long, so the default is generous.
	Timeout time.Duration

	// TextRetryAttempts is the total number of attempts for a text
	// submission, including the first.
	TextRetryAttempts int

	// TextRetryDelay is the fixed pause between text attempts.
	TextRetryDelay time.Duration

	// OnRetry, when set, fires once per retry attempt after the first.
	OnRetry func()
}

// Client submits queries to the backend.
type Client struct {
	cfg        Config
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client. Zero config fields get defaults.
func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TextRetryAttempts <= 0 {
		cfg.TextRetryAttempts = defaultTextRetryAttempts
	}
	if cfg.TextRetryDelay < 0 {
		cfg.TextRetryDelay = defaultTextRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client. Used by tests to
// inject transports.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// Submit validates and dispatches a request by kind. Transport and
// backend failures come back inside the normalized response; the error
// return is reserved for requests that are malformed before any network
// activity happens.
func (c *Client) Submit(ctx context.Context, req *query.SubmissionRequest) (*query.NormalizedResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("submission precondition failed: %w", err)
	}

	if req.Kind == query.KindText {
		return c.submitText(ctx, req, token), nil
	}
	return c.submitOnce(ctx, req, token), nil
}

// submitText runs the text path: claim the process-wide slot, then up to
// the configured number of attempts with a fixed delay between them.
// Only transport failures are retried; a reply from the backend, however
// unhappy, settles the submission.
func (c *Client) submitText(ctx context.Context, req *query.SubmissionRequest, token string) *query.NormalizedResponse {
	release, ok := acquireText()
	if !ok {
		c.logger.Warn("text submission rejected, another is in flight")
		return &query.NormalizedResponse{
			Success: false,
			Failure: query.FailureAlreadyInProgress,
			Message: "a text query is already in progress",
		}
	}
	defer release()

	attempts := c.cfg.TextRetryAttempts
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.doAttempt(ctx, req, token)
		if err == nil {
			return resp
		}
		lastErr = err

		c.logger.Warn("text submission attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()))

		if attempt < attempts {
			if c.cfg.OnRetry != nil {
				c.cfg.OnRetry()
			}
			select {
			case <-time.After(c.cfg.TextRetryDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				return &query.NormalizedResponse{
					Success: false,
					Failure: classifyTransport(lastErr),
					Message: fmt.Sprintf("text query failed after %d attempts: %v", attempt, lastErr),
				}
			}
		}
	}

	return &query.NormalizedResponse{
		Success: false,
		Failure: classifyTransport(lastErr),
		Message: fmt.Sprintf("text query failed after %d attempts: %v", attempts, lastErr),
	}
}

// submitOnce runs the single-attempt path used by voice and image kinds.
// Concurrent voice or image submissions are allowed; the backend treats
// each independently.
func (c *Client) submitOnce(ctx context.Context, req *query.SubmissionRequest, token string) *query.NormalizedResponse {
	resp, err := c.doAttempt(ctx, req, token)
	if err != nil {
		c.logger.Warn("submission failed",
			slog.String("kind", req.Kind.String()),
			slog.String("error", err.Error()))
		return &query.NormalizedResponse{
			Success: false,
			Failure: classifyTransport(err),
			Message: fmt.Sprintf("%s query failed: %v", req.Kind, err),
		}
	}
	return resp
}

// doAttempt performs one HTTP round trip. The error return means the
// request never produced a reply; any reply, success or not, comes back
// as a normalized response.
func (c *Client) doAttempt(ctx context.Context, req *query.SubmissionRequest, token string) (*query.NormalizedResponse, error) {
	body, contentType, err := buildMultipart(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + req.Kind.Endpoint()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply body: %w", err)
	}

	c.logger.Debug("submission round trip",
		slog.String("kind", req.Kind.String()),
		slog.Int("status", httpResp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &query.NormalizedResponse{
			Success: false,
			Failure: query.FailureRemoteRejected,
			Message: extractDetail(raw, httpResp.StatusCode),
		}, nil
	}

	return response.Normalize(raw), nil
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) error {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/health"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", httpResp.StatusCode)
	}
	return nil
}

// FetchAudio downloads a reply's audio by reference. Relative references
// resolve against the backend base URL; absolute ones are used as-is.
func (c *Client) FetchAudio(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty audio reference")
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("audio fetch precondition failed: %w", err)
	}

	target := ref
	if parsed, err := url.Parse(ref); err == nil && !parsed.IsAbs() {
		target = strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(ref, "/")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("audio fetch failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio fetch returned status %d", httpResp.StatusCode)
	}

	return io.ReadAll(httpResp.Body)
}

// classifyTransport distinguishes a deadline blown waiting for the
// backend from a network that never carried the request at all.
func classifyTransport(err error) query.FailureKind {
	if err == nil {
		return query.FailureNetworkUnreachable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return query.FailureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return query.FailureTimeout
	}

	return query.FailureNetworkUnreachable
}

// extractDetail pulls the error detail out of a non-2xx reply body. The
// backend reports errors as {"detail": "..."}.
func extractDetail(raw []byte, status int) string {
	var envelope struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Detail != "" {
			return envelope.Detail
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return fmt.Sprintf("backend returned status %d", status)
}

// buildMultipart assembles the form body for a submission. Field names
// follow the backend's per-endpoint contract.
func buildMultipart(req *query.SubmissionRequest) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := w.WriteField("request_id", uuid.New().String()); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("language", req.Language); err != nil {
		return nil, "", err
	}
	if req.UserID != "" {
		if err := w.WriteField("user_id", req.UserID); err != nil {
			return nil, "", err
		}
	}

	switch req.Kind {
	case query.KindText:
		if err := w.WriteField("query", req.Text); err != nil {
			return nil, "", err
		}
		if req.LocationHint != "" {
			if err := w.WriteField("location", req.LocationHint); err != nil {
				return nil, "", err
			}
		}
		if req.CropHint != "" {
			if err := w.WriteField("crop_type", req.CropHint); err != nil {
				return nil, "", err
			}
		}

	case query.KindVoice:
		if err := writeFilePart(w, "audio_file", req.Audio.Filename, req.Audio.ContentType, req.Audio.Payload); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("transcription", req.Transcription); err != nil {
			return nil, "", err
		}

	case query.KindImage:
		if err := writeFilePart(w, "file", req.ImageFilename, req.ImageContentType, req.Image); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("query", req.Text); err != nil {
			return nil, "", err
		}

	case query.KindVoiceImage:
		if err := writeFilePart(w, "audio_file", req.Audio.Filename, req.Audio.ContentType, req.Audio.Payload); err != nil {
			return nil, "", err
		}
		if err := writeFilePart(w, "image_file", req.ImageFilename, req.ImageContentType, req.Image); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("transcription", req.Transcription); err != nil {
			return nil, "", err
		}

	case query.KindTextImage:
		if err := w.WriteField("text", req.Text); err != nil {
			return nil, "", err
		}
		if err := writeFilePart(w, "image_file", req.ImageFilename, req.ImageContentType, req.Image); err != nil {
			return nil, "", err
		}

	default:
		return nil, "", fmt.Errorf("unsupported submission kind: %s", req.Kind)
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf, w.FormDataContentType(), nil
}

// writeFilePart adds a file field with an explicit content type.
func writeFilePart(w *multipart.Writer, field, filename, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}

	_, err = part.Write(data)
	return err
}

package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

// Auth types accepted by the webhook.
const (
	AuthNone   = "none"
	AuthAPIKey = "apiKey"
	AuthBearer = "bearer"
)

const pingTimeout = 10 * time.Second

// HTTPConfig describes the OCR webhook endpoints.
type HTTPConfig struct {
	WebhookURL string
	ResultURL  string
	TestURL    string
	AuthType   string
	AuthValue  string
}

// HTTPClient talks to an n8n style OCR webhook over multipart HTTP.
type HTTPClient struct {
	cfg    HTTPConfig
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a webhook client. A nil http client gets a default
// one without timeout; polling deadlines are enforced by the Sender.
func NewHTTPClient(cfg HTTPConfig, client *http.Client, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{cfg: cfg, http: client, logger: logger}
}

// Configured reports whether a webhook URL is set.
func (c *HTTPClient) Configured() bool {
	return c.cfg.WebhookURL != ""
}

func (c *HTTPClient) authHeaders(h http.Header) {
	if c.cfg.AuthValue == "" {
		return
	}
	switch c.cfg.AuthType {
	case AuthAPIKey:
		h.Set("X-API-Key", c.cfg.AuthValue)
	case AuthBearer:
		h.Set("Authorization", "Bearer "+c.cfg.AuthValue)
	}
}

// Submit posts both PDFs with the session metadata.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	const op = "submit"
	if !c.Configured() {
		return nil, newError(op, KindConfig, "OCR webhook URL is not configured", ErrNotConfigured)
	}

	body, contentType, err := buildMultipart(req)
	if err != nil {
		return nil, newError(op, KindContent, "could not build OCR request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, newError(op, KindConfig, "invalid OCR webhook URL", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	c.authHeaders(httpReq.Header)

	raw, err := c.do(httpReq, req.SessionID, len(body))
	if err != nil {
		return nil, newError(op, KindTransport, transportMessage(err), err)
	}

	rep, err := parseReply(raw)
	if err != nil {
		return nil, newError(op, KindContent, "could not parse OCR response", err)
	}
	if rep.Status != "" {
		if c.cfg.ResultURL == "" {
			return nil, newError(op, KindConfig, "OCR webhook accepted the job but no result URL is configured", ErrNotConfigured)
		}
		c.logger.Info("ocr.submit.accepted", "session_id", req.SessionID)
		return nil, nil
	}
	return rep.Result, nil
}

// Poll asks the result endpoint whether the session's job has finished.
func (c *HTTPClient) Poll(ctx context.Context, sessionID string) (*Result, error) {
	const op = "poll"
	if c.cfg.ResultURL == "" {
		return nil, newError(op, KindConfig, "OCR result URL is not configured", ErrNotConfigured)
	}

	u, err := url.Parse(c.cfg.ResultURL)
	if err != nil {
		return nil, newError(op, KindConfig, "invalid OCR result URL", err)
	}
	q := u.Query()
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, newError(op, KindConfig, "invalid OCR result URL", err)
	}
	c.authHeaders(httpReq.Header)

	raw, err := c.do(httpReq, sessionID, 0)
	if err != nil {
		return nil, newError(op, KindTransport, transportMessage(err), err)
	}
	rep, err := parseReply(raw)
	if err != nil {
		return nil, newError(op, KindContent, "could not parse OCR response", err)
	}
	if rep.Status != "" {
		return nil, nil
	}
	return rep.Result, nil
}

// Ping checks that the test (or webhook) URL answers. Any status below 500
// counts as reachable since webhooks commonly reject GET with 404 or 405.
func (c *HTTPClient) Ping(ctx context.Context) (bool, error) {
	const op = "ping"
	target := c.cfg.TestURL
	if target == "" {
		target = c.cfg.WebhookURL
	}
	if target == "" {
		return false, newError(op, KindConfig, "OCR webhook URL is empty", ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, newError(op, KindConfig, "invalid OCR test URL", err)
	}
	c.authHeaders(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, newError(op, KindTimeout, "connection test timed out (10s)", err)
		}
		return false, newError(op, KindTransport, "could not reach the OCR webhook", err)
	}
	_ = resp.Body.Close()

	c.logger.Info("ocr.ping", "url", target, "status", resp.StatusCode)
	return resp.StatusCode < http.StatusInternalServerError, nil
}

// do sends the request and returns the body of a 2xx response.
func (c *HTTPClient) do(req *http.Request, sessionID string, size int) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()
	if sessionID == "" {
		sessionID = common.SessionIDFromContext(req.Context())
	}
	runID := common.RequestIDFromContext(req.Context())
	if runID != "" {
		req.Header.Set("X-Request-ID", runID)
	}

	c.logger.Info("ocr.http.request",
		"req_id", reqID,
		"method", req.Method,
		"url", req.URL.Redacted(),
		"session_id", sessionID,
		"content_length", size,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("ocr.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("ocr.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.logger.Info("ocr.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return raw, nil
}

func transportMessage(err error) string {
	if errors.Is(err, ErrHTTPStatus) {
		return fmt.Sprintf("OCR service returned an error (%v)", err)
	}
	return "could not reach the OCR service"
}

func buildMultipart(req SubmitRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"sessionId", req.SessionID},
		{"produit", req.Product},
		{"client", req.Client},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	files := []struct {
		field, name string
		data        []byte
	}{
		{"cdvPdf", "cdv.pdf", req.CdvPDF},
		{"ficheLotPdf", "fiche_lot.pdf", req.FichePDF},
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", "application/pdf")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	minTimeoutMinutes = 1
	maxTimeoutMinutes = 10

	defaultRetryDelay   = 2 * time.Second
	defaultPollInterval = 3 * time.Second
)

// SenderConfig is the retry and polling policy of a Sender.
type SenderConfig struct {
	TimeoutMinutes int
	RetryCount     int
	RetryDelay     time.Duration
	PollInterval   time.Duration
}

// PollTimeout returns the polling deadline, clamped to [1, 10] minutes.
func (c SenderConfig) PollTimeout() time.Duration {
	m := c.TimeoutMinutes
	if m < minTimeoutMinutes {
		m = minTimeoutMinutes
	}
	if m > maxTimeoutMinutes {
		m = maxTimeoutMinutes
	}
	return time.Duration(m) * time.Minute
}

// Sender submits a session to a Client and waits for its result, retrying
// failed attempts.
type Sender struct {
	client  Client
	cfg     SenderConfig
	timeout time.Duration
	logger  *slog.Logger
}

// NewSender wraps client with the given policy.
func NewSender(client Client, cfg SenderConfig, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Sender{client: client, cfg: cfg, timeout: cfg.PollTimeout(), logger: logger}
}

// Send runs submit then poll, up to RetryCount+1 times. Configuration errors
// return immediately; after the last attempt the last error is returned.
func (s *Sender) Send(ctx context.Context, req SubmitRequest, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}

	var result *Result
	err := retry.Do(
		func() error {
			res, err := s.attempt(ctx, req, progress)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.RetryCount+1)),
		retry.Delay(s.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(Retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("ocr.send.retry",
				"session_id", req.SessionID,
				"attempt", n+1,
				"kind", KindOf(err),
				"error", err,
			)
			progress(fmt.Sprintf("Retrying OCR (attempt %d/%d)...", n+2, s.cfg.RetryCount+1))
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Sender) attempt(ctx context.Context, req SubmitRequest, progress ProgressFunc) (*Result, error) {
	progress("Sending documents to OCR...")
	start := time.Now()

	res, err := s.client.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if res != nil {
		s.logger.Info("ocr.send.done", "session_id", req.SessionID, "mode", "sync", "elapsed_ms", time.Since(start).Milliseconds())
		return res, nil
	}

	timeout := s.timeout
	deadline := start.Add(timeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		progress(fmt.Sprintf("OCR in progress (%ds)...", int(time.Since(start).Seconds())))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return nil, newError("poll", KindTimeout,
				fmt.Sprintf("OCR timed out after %s", timeout), ErrTimeout)
		}

		res, err := s.client.Poll(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			s.logger.Info("ocr.send.done", "session_id", req.SessionID, "mode", "poll", "elapsed_ms", time.Since(start).Milliseconds())
			return res, nil
		}
	}
}

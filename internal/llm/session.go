package llm

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"telchat/internal/logging"
	"telchat/internal/metrics"
)

var ErrMissingToken = errors.New("llm token is required")

type SessionConfig struct {
	Token string
	Retry RetryPolicy
	// Transport is the base round tripper; a private clone of
	// http.DefaultTransport when nil.
	Transport http.RoundTripper
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// Session is a reusable HTTP client carrying the auth headers and the retry
// policy. It is safe to share; nothing mutates it after NewSession.
type Session struct {
	client *http.Client
	retry  *retryTransport
	header http.Header
}

// NewSession builds a session without touching the network.
func NewSession(cfg SessionConfig) (*Session, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, ErrMissingToken
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)
	header.Set("Content-Type", "application/json")

	retry := newRetryTransport(base, cfg.Retry, logger, cfg.Metrics)
	return &Session{
		client: &http.Client{Transport: retry},
		retry:  retry,
		header: header,
	}, nil
}

// Do sends req with the session's default headers filled in. Headers already
// present on req win.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for key, values := range s.header {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return s.client.Do(req)
}

func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

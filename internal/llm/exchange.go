package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"telchat/internal/logging"
	"telchat/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"
	DefaultTimeout = 5 * time.Second

	// PersonaPrompt is the system message sent ahead of every prompt.
	PersonaPrompt = "Eres un asistente experto en telecomunicaciones que responde con ejemplos claros y cálculos sencillos."

	maxResponseBytes = 4 << 20
)

type ExchangeConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Exchange performs one stateless prompt/reply round trip per Send call.
type Exchange struct {
	endpoint string
	model    string
	timeout  time.Duration
	maxBody  int64
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

func NewExchange(cfg ExchangeConfig) (*Exchange, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout < 0 {
		return nil, errors.New("exchange timeout must not be negative")
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Exchange{
		endpoint: buildChatEndpoint(baseURL),
		model:    model,
		timeout:  timeout,
		maxBody:  maxResponseBytes,
		logger:   logger,
		metrics:  cfg.Metrics,
	}, nil
}

func (e *Exchange) Endpoint() string { return e.endpoint }

// BuildRequest returns the payload for prompt: the persona message followed
// by the prompt, unchanged.
func (e *Exchange) BuildRequest(prompt string) ChatRequest {
	return ChatRequest{
		Model: e.model,
		Messages: []Message{
			{Role: RoleSystem, Content: PersonaPrompt},
			{Role: RoleUser, Content: prompt},
		},
	}
}

// Send posts prompt through sender and classifies what came back. It never
// returns a Go error; every failure is a Result outcome.
func (e *Exchange) Send(ctx context.Context, sender Doer, prompt string) Result {
	start := time.Now()
	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID)

	res := e.send(ctx, sender, prompt, requestID)

	elapsed := time.Since(start)
	e.metrics.ObserveExchange(res.Outcome.String(), elapsed)
	if res.Err != nil {
		logger.Warn("exchange failed",
			"outcome", res.Outcome.String(),
			"status", res.StatusCode,
			"duration", elapsed,
			"error", res.Err,
		)
	} else {
		logger.Debug("exchange finished",
			"status", res.StatusCode,
			"duration", elapsed,
		)
	}
	return res
}

func (e *Exchange) send(ctx context.Context, sender Doer, prompt, requestID string) Result {
	if _, ok := sender.(*Session); ok {
		ctx = WithAttemptTimeout(ctx, e.timeout)
	} else {
		// A plain Doer makes a single attempt, so one deadline covers it.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	requestBody, err := json.Marshal(e.BuildRequest(prompt))
	if err != nil {
		return transportFailure(fmt.Errorf("marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return transportFailure(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("X-Request-Id", requestID)

	httpResp, err := sender.Do(httpReq)
	if err != nil {
		return transportFailure(fmt.Errorf("chat request: %w", err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, e.maxBody+1))
	if err != nil {
		return transportFailure(fmt.Errorf("read response: %w", err))
	}
	if int64(len(body)) > e.maxBody {
		return transportFailure(fmt.Errorf("read response: body exceeds %d bytes (status %d)", e.maxBody, httpResp.StatusCode))
	}
	return Classify(httpResp.StatusCode, body)
}

func transportFailure(err error) Result {
	return Result{
		Outcome: OutcomeTransportError,
		Err:     &TransportError{Err: err},
	}
}

func buildChatEndpoint(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

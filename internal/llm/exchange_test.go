package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExchangeSendsPersonaAndPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "deepseek-chat" {
			t.Fatalf("unexpected model: %s", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(req.Messages))
		}
		if req.Messages[0] != (Message{Role: RoleSystem, Content: PersonaPrompt}) {
			t.Fatalf("unexpected system message: %+v", req.Messages[0])
		}
		if req.Messages[1] != (Message{Role: RoleUser, Content: "  ¿qué es un dBm?  "}) {
			t.Fatalf("unexpected user message: %+v", req.Messages[1])
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer server.Close()

	res := newTestExchange(t, server.URL).Send(context.Background(), server.Client(), "  ¿qué es un dBm?  ")
	if res.Outcome != OutcomeReply {
		t.Fatalf("unexpected outcome: %s (%v)", res.Outcome, res.Err)
	}
	if res.Reply != "hello" {
		t.Fatalf("unexpected reply: %s", res.Reply)
	}
}

func TestExchangeForwardsEmptyPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Messages[1].Content != "" {
			t.Fatalf("expected empty prompt, got %q", req.Messages[1].Content)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"?"}}]}`))
	}))
	defer server.Close()

	res := newTestExchange(t, server.URL).Send(context.Background(), server.Client(), "")
	if res.Outcome != OutcomeReply {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
}

func TestExchangeTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	exchange, err := NewExchange(ExchangeConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	session, delays := newTestSession(t, nil)
	res := exchange.Send(context.Background(), session, "hi")
	if res.Outcome != OutcomeTransportError {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	var terr *TransportError
	if !errors.As(res.Err, &terr) {
		t.Fatalf("expected transport error, got %T", res.Err)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", res.Err)
	}
	if len(*delays) != 0 {
		t.Fatalf("timeouts must not be retried: %v", *delays)
	}
}

func TestExchangeUnreachableIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	session, _ := newTestSession(t, nil)
	res := newTestExchange(t, url).Send(context.Background(), session, "hi")
	if res.Outcome != OutcomeTransportError {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if res.StatusCode != 0 {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
}

func TestExchangeIsStateless(t *testing.T) {
	var prompts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(req.Messages))
		}
		prompts = append(prompts, req.Messages[1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	exchange := newTestExchange(t, server.URL)
	for _, prompt := range []string{"uno", "dos", "tres"} {
		exchange.Send(context.Background(), server.Client(), prompt)
	}
	if len(prompts) != 3 || prompts[0] != "uno" || prompts[2] != "tres" {
		t.Fatalf("unexpected prompts: %v", prompts)
	}
}

func TestBuildChatEndpoint(t *testing.T) {
	cases := map[string]string{
		"https://api.deepseek.com":                     "https://api.deepseek.com/v1/chat/completions",
		"https://api.deepseek.com/":                    "https://api.deepseek.com/v1/chat/completions",
		"https://api.deepseek.com/v1":                  "https://api.deepseek.com/v1/chat/completions",
		"https://api.deepseek.com/v1/chat/completions": "https://api.deepseek.com/v1/chat/completions",
	}
	for base, want := range cases {
		if got := buildChatEndpoint(base); got != want {
			t.Fatalf("%s: expected %s, got %s", base, want, got)
		}
	}
}

func TestNewExchangeDefaults(t *testing.T) {
	exchange, err := NewExchange(ExchangeConfig{})
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	if exchange.Endpoint() != "https://api.deepseek.com/v1/chat/completions" {
		t.Fatalf("unexpected endpoint: %s", exchange.Endpoint())
	}
	if exchange.timeout != DefaultTimeout {
		t.Fatalf("unexpected timeout: %s", exchange.timeout)
	}
	if _, err := NewExchange(ExchangeConfig{Timeout: -time.Second}); err == nil {
		t.Fatalf("expected error for negative timeout")
	}
}

func TestExchangeOversizedBodyIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"0123456789"}}]}`))
	}))
	defer server.Close()

	exchange := newTestExchange(t, server.URL)
	exchange.maxBody = 16
	res := exchange.Send(context.Background(), server.Client(), "hi")
	if res.Outcome != OutcomeTransportError {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if !strings.Contains(res.Err.Error(), "exceeds 16 bytes") {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}

package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Outcome tags a Result. Every Result carries exactly one.
type Outcome int

const (
	OutcomeReply Outcome = iota
	OutcomeTransportError
	OutcomeMalformedPayload
	OutcomeProviderError
	OutcomeUnexpectedFormat
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReply:
		return "reply"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeMalformedPayload:
		return "malformed_payload"
	case OutcomeProviderError:
		return "provider_error"
	case OutcomeUnexpectedFormat:
		return "unexpected_format"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one exchange. Reply is set for OutcomeReply; Err
// holds the typed failure for every other outcome.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Reply      string
	Err        error
}

// TransportError means no usable response was received: network, DNS, TLS
// failures and timeouts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// MalformedPayloadError means the response body was not JSON.
type MalformedPayloadError struct {
	StatusCode int
	Raw        string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed response payload (status %d): %s", e.StatusCode, e.Raw)
}

// ProviderError is a non-2xx response with a JSON body. Detail is the
// compacted "error" object, or {} when the provider sent none.
type ProviderError struct {
	StatusCode int
	Detail     json.RawMessage
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Detail)
}

// UnexpectedFormatError is a 2xx JSON response without a reply at
// choices[0].message.content. Payload is the whole compacted body.
type UnexpectedFormatError struct {
	Payload json.RawMessage
}

func (e *UnexpectedFormatError) Error() string {
	return fmt.Sprintf("unexpected response format: %s", e.Payload)
}

var emptyObject = json.RawMessage("{}")

// Classify interprets a received response. It is only called once a response
// exists; transport failures never reach it.
func Classify(status int, body []byte) Result {
	if !json.Valid(body) {
		return Result{
			Outcome:    OutcomeMalformedPayload,
			StatusCode: status,
			Err:        &MalformedPayloadError{StatusCode: status, Raw: string(body)},
		}
	}

	if status < 200 || status >= 300 {
		return Result{
			Outcome:    OutcomeProviderError,
			StatusCode: status,
			Err:        &ProviderError{StatusCode: status, Detail: providerDetail(body)},
		}
	}

	reply, ok := extractReply(body)
	if !ok {
		return Result{
			Outcome:    OutcomeUnexpectedFormat,
			StatusCode: status,
			Err:        &UnexpectedFormatError{Payload: compact(body)},
		}
	}
	return Result{
		Outcome:    OutcomeReply,
		StatusCode: status,
		Reply:      reply,
	}
}

func providerDetail(body []byte) json.RawMessage {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return emptyObject
	}
	detail := bytes.TrimSpace(envelope.Error)
	if len(detail) == 0 || bytes.Equal(detail, []byte("null")) {
		return emptyObject
	}
	return compact(detail)
}

func extractReply(body []byte) (string, bool) {
	var resp struct {
		Choices []struct {
			Message *struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if len(resp.Choices) == 0 {
		return "", false
	}
	msg := resp.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return "", false
	}
	return *msg.Content, true
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return json.RawMessage(raw)
	}
	return json.RawMessage(buf.Bytes())
}

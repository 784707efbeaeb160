package llm

import (
	"errors"
	"testing"
)

func TestClassifyReply(t *testing.T) {
	res := Classify(200, []byte(`{"choices":[{"message":{"content":"42 dBm"}}]}`))
	if res.Outcome != OutcomeReply {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if res.Reply != "42 dBm" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}

func TestClassifyMalformedPayload(t *testing.T) {
	for _, status := range []int{200, 502} {
		res := Classify(status, []byte("not json"))
		if res.Outcome != OutcomeMalformedPayload {
			t.Fatalf("status %d: unexpected outcome: %s", status, res.Outcome)
		}
		var merr *MalformedPayloadError
		if !errors.As(res.Err, &merr) {
			t.Fatalf("status %d: expected malformed payload error, got %T", status, res.Err)
		}
		if merr.Raw != "not json" {
			t.Fatalf("status %d: unexpected raw text: %q", status, merr.Raw)
		}
	}
}

func TestClassifyProviderError(t *testing.T) {
	res := Classify(401, []byte(`{"error": {"message": "bad key"}}`))
	if res.Outcome != OutcomeProviderError {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	var perr *ProviderError
	if !errors.As(res.Err, &perr) {
		t.Fatalf("expected provider error, got %T", res.Err)
	}
	if perr.StatusCode != 401 {
		t.Fatalf("unexpected status: %d", perr.StatusCode)
	}
	if string(perr.Detail) != `{"message":"bad key"}` {
		t.Fatalf("unexpected detail: %s", perr.Detail)
	}
}

func TestClassifyProviderErrorWithoutDetail(t *testing.T) {
	for _, body := range []string{`{}`, `{"error":null}`, `[1,2]`, `"oops"`} {
		res := Classify(500, []byte(body))
		var perr *ProviderError
		if !errors.As(res.Err, &perr) {
			t.Fatalf("%s: expected provider error, got %T", body, res.Err)
		}
		if string(perr.Detail) != "{}" {
			t.Fatalf("%s: unexpected detail: %s", body, perr.Detail)
		}
	}
}

func TestClassifyUnexpectedFormat(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"choices":[]}`,
		`{"choices":"nope"}`,
		`{"choices":[{"text":"legacy"}]}`,
		`{"choices":[{"message":{"content":7}}]}`,
		`{"choices":[{"message":{"content":null}}]}`,
	}
	for _, body := range bodies {
		res := Classify(200, []byte(body))
		if res.Outcome != OutcomeUnexpectedFormat {
			t.Fatalf("%s: unexpected outcome: %s", body, res.Outcome)
		}
		var uerr *UnexpectedFormatError
		if !errors.As(res.Err, &uerr) {
			t.Fatalf("%s: expected unexpected format error, got %T", body, res.Err)
		}
		if string(uerr.Payload) != body {
			t.Fatalf("%s: unexpected payload: %s", body, uerr.Payload)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeProviderError.String() != "provider_error" {
		t.Fatalf("unexpected name: %s", OutcomeProviderError)
	}
	if Outcome(42).String() != "outcome(42)" {
		t.Fatalf("unexpected name: %s", Outcome(42))
	}
}

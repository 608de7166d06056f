package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corvus-ai/corvid/internal/log"
)

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:    url,
		APIKey:     "test-key",
		Model:      "test-model",
		EmbedModel: "test-embed",
		Retry: RetryConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}, log.NewNop())
}

func sseBody(chunks ...string) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString("data: " + c + "\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func TestStreamContentDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		))
	}))
	defer srv.Close()

	var content strings.Builder
	var finish string
	err := testClient(t, srv.URL).Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(d Delta) error {
		content.WriteString(d.Content)
		if d.FinishReason != "" {
			finish = d.FinishReason
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if content.String() != "Hello" {
		t.Errorf("content = %q, want %q", content.String(), "Hello")
	}
	if finish != FinishStop {
		t.Errorf("finish reason = %q, want %q", finish, FinishStop)
	}
}

func TestStreamToolCallFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup","arguments":""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"fox\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		))
	}))
	defer srv.Close()

	var (
		id, name string
		args     strings.Builder
		finish   string
	)
	err := testClient(t, srv.URL).Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(d Delta) error {
		for _, tc := range d.ToolCalls {
			if tc.ID != "" {
				id = tc.ID
			}
			if tc.Name != "" {
				name = tc.Name
			}
			args.WriteString(tc.Arguments)
		}
		if d.FinishReason != "" {
			finish = d.FinishReason
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "call_1" || name != "lookup" {
		t.Errorf("call identity = %q/%q", id, name)
	}
	if got := args.String(); got != `{"query":"fox"}` {
		t.Errorf("accumulated arguments = %q", got)
	}
	if finish != FinishToolCalls {
		t.Errorf("finish reason = %q", finish)
	}
}

func TestStreamRetriesConnection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, sseBody(`{"choices":[{"delta":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	var content string
	err := testClient(t, srv.URL).Stream(context.Background(), Request{}, func(d Delta) error {
		content += d.Content
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if content != "ok" {
		t.Errorf("content = %q", content)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deltas but no [DONE] marker.
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n")
	}))
	defer srv.Close()

	err := testClient(t, srv.URL).Stream(context.Background(), Request{}, func(Delta) error { return nil })
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestStreamCallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseBody(
			`{"choices":[{"delta":{"content":"a"}}]}`,
			`{"choices":[{"delta":{"content":"b"}}]}`,
		))
	}))
	defer srv.Close()

	sentinel := errors.New("stop now")
	err := testClient(t, srv.URL).Stream(context.Background(), Request{}, func(Delta) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices":[{"message":{"content":"answer","tool_calls":[{"id":"c1","type":"function","function":{"name":"lookup","arguments":"{}"}}]},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
		}`)
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL).Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "answer" || resp.FinishReason != FinishStop {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "lookup" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestCompleteNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Complete(context.Background(), Request{})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1 (no retry on 400)", got)
	}
}

func TestEmbedBatchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Out of order on purpose.
		fmt.Fprint(w, `{"data":[
			{"index":1,"embedding":[0.2]},
			{"index":0,"embedding":[0.1]},
			{"index":2,"embedding":[0.3]}
		]}`)
	}))
	defer srv.Close()

	vecs, err := testClient(t, srv.URL).EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0.1, 0.2, 0.3}
	for i, v := range vecs {
		if len(v) != 1 || v[0] != want[i] {
			t.Errorf("vector %d = %v, want [%v]", i, v, want[i])
		}
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[0.1]}]}`)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &statusError{code: 429}, true},
		{"server error", &statusError{code: 502}, true},
		{"client error", &statusError{code: 400}, false},
		{"unauthorized", &statusError{code: 401}, false},
		{"wrapped status", fmt.Errorf("call: %w", &statusError{code: 500}), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"plain", errors.New("no such model"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("seconds form = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty = %v", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("garbage = %v", got)
	}
	future := time.Now().Add(2 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > 2*time.Second {
		t.Errorf("date form = %v", got)
	}
}

func TestStatusErrorIsProviderError(t *testing.T) {
	err := fmt.Errorf("complete: %w", &statusError{code: 500, body: "boom"})
	if !errors.Is(err, ErrProvider) {
		t.Error("statusError does not match ErrProvider")
	}
}

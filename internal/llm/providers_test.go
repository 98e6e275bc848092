package llm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pipewise/pipewise/agent-core/internal/llm"
)

func completeAgainst(t *testing.T, handler http.HandlerFunc) error {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := llm.NewOpenAIProvider("openai", srv.URL, "test-key", "")
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.ChatMessage{{Role: "user", Content: "hi"}},
	})
	return err
}

func TestOpenAIContentFilterRejection(t *testing.T) {
	err := completeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"content_filter","message":"blocked by policy"}}`))
	})
	if err == nil {
		t.Fatal("Complete succeeded, want content-filter error")
	}

	var lerr *llm.Error
	if !errors.As(err, &lerr) {
		t.Fatalf("error %v is not *llm.Error", err)
	}
	if lerr.Code != llm.ErrContentFiltered {
		t.Errorf("Code = %s, want %s", lerr.Code, llm.ErrContentFiltered)
	}
	if llm.IsRetryable(err) {
		t.Error("content-filter error reported retryable")
	}
}

func TestOpenAIContentFilterFinishReason(t *testing.T) {
	err := completeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`))
	})
	if err == nil {
		t.Fatal("Complete succeeded, want content-filter error")
	}
	if got := llm.CodeOf(err); got != llm.ErrContentFiltered {
		t.Errorf("CodeOf = %s, want %s", got, llm.ErrContentFiltered)
	}
}

func TestOpenAIPlainBadRequestStaysInvalid(t *testing.T) {
	err := completeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"invalid_request_error","message":"bad temperature"}}`))
	})
	if got := llm.CodeOf(err); got != llm.ErrInvalidRequest {
		t.Errorf("CodeOf = %s, want %s", got, llm.ErrInvalidRequest)
	}
}

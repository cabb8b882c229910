package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vitalscan/core"
)

// chatRequest mirrors the fields of the completion request the tests care
// about.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// newChatServer fakes an OpenAI-compatible completion endpoint that replies
// with the given text and records each request.
func newChatServer(t *testing.T, reply string, requests *[]chatRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		*requests = append(*requests, req)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]string{"role": "assistant", "content": reply},
				},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(baseURL string) *core.Config {
	return &core.Config{
		AssistantAPIKey:  "test-key",
		AssistantBaseURL: baseURL + "/v1",
		AssistantModel:   "test-model",
		AssistantTimeout: 10 * time.Second,
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(&core.Config{}, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestConversationAsk(t *testing.T) {
	var requests []chatRequest
	server := newChatServer(t, "A resting rate of 72 BPM is within the normal range.", &requests)

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	conv := client.NewConversation()
	reply, err := conv.Ask(context.Background(), "Is 72 BPM normal?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !strings.Contains(reply, "normal range") {
		t.Errorf("reply = %q", reply)
	}

	if len(requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(requests))
	}
	req := requests[0]
	if req.Model != "test-model" {
		t.Errorf("model = %q, want test-model", req.Model)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "not a medical professional") {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if req.Messages[1].Role != "user" || req.Messages[1].Content != "Is 72 BPM normal?" {
		t.Errorf("user message = %+v", req.Messages[1])
	}
}

func TestConversationKeepsHistory(t *testing.T) {
	var requests []chatRequest
	server := newChatServer(t, "Sure.", &requests)

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	conv := client.NewConversation()
	if _, err := conv.Ask(context.Background(), "first question"); err != nil {
		t.Fatal(err)
	}
	if _, err := conv.Ask(context.Background(), "second question"); err != nil {
		t.Fatal(err)
	}

	// Second request carries system + first exchange + new question.
	second := requests[1]
	if len(second.Messages) != 4 {
		t.Fatalf("second request messages = %d, want 4", len(second.Messages))
	}
	if second.Messages[1].Content != "first question" {
		t.Errorf("messages[1] = %+v", second.Messages[1])
	}
	if second.Messages[2].Role != "assistant" {
		t.Errorf("messages[2].Role = %q, want assistant", second.Messages[2].Role)
	}

	// System prompt + 2 exchanges.
	if conv.Len() != 5 {
		t.Errorf("Len() = %d, want 5", conv.Len())
	}
}

func TestConversationFailureLeavesHistoryClean(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	conv := client.NewConversation()
	if _, err := conv.Ask(context.Background(), "hello?"); err == nil {
		t.Fatal("expected error from rate-limited backend")
	}
	// The failed exchange is not recorded; retrying later starts clean.
	if conv.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (system prompt only)", conv.Len())
	}
}

func TestTruncateToBudget(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"short untouched", "cholesterol normal", 100, "cholesterol normal"},
		{"no budget untouched", "anything", 0, "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateToBudget(tt.text, tt.max); got != tt.want {
				t.Errorf("TruncateToBudget() = %q, want %q", got, tt.want)
			}
		})
	}

	long := strings.Repeat("lab value within range ", 100)
	got := TruncateToBudget(long, 50)
	if !strings.HasSuffix(got, "[report truncated]") {
		t.Errorf("truncated text missing marker: %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Errorf("unexpected double space in %q", got)
	}
	if len([]rune(got)) > 50+len("\n[report truncated]") {
		t.Errorf("truncated text too long: %d runes", len([]rune(got)))
	}
}

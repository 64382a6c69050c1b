package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

func TestOpenAIComplete(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "sk-test", "deepseek-chat")
	reply, err := o.Complete(context.Background(), Request{
		System:    "sys",
		Text:      "hi",
		Image:     []byte("img"),
		ImageType: "image/png",
		MaxTokens: 42,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "hello" {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "deepseek-chat" || got.MaxTokens != 42 {
		t.Errorf("payload = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	user := got.Messages[1]
	if len(user.Content) != 2 || user.Content[1].ImageURL == nil {
		t.Fatalf("user content = %+v", user.Content)
	}
	if !strings.HasPrefix(user.Content[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image url = %q", user.Content[1].ImageURL.URL)
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL, "k", "m").Complete(context.Background(), Request{Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenAINoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := NewOpenAI(srv.URL, "k", "m").Complete(context.Background(), Request{Text: "hi"}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestAnthropicComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Api-Key") != "ak-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "炖个汤"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	a := NewAnthropic("ak-test", "claude-test", option.WithBaseURL(srv.URL))
	reply, err := a.Complete(context.Background(), Request{System: "sys", Text: "hi", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "炖个汤" {
		t.Errorf("reply = %q", reply)
	}
	if body["model"] != "claude-test" {
		t.Errorf("model = %v", body["model"])
	}
	if _, ok := body["system"]; !ok {
		t.Error("system prompt missing")
	}
}

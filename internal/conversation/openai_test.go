package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIGeneratorRequestShape(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"I understand, let me help with that."}}]}`)
	}))
	defer server.Close()

	g := NewOpenAIGenerator("sk-test", WithBaseURL(server.URL+"/"), WithModel("gpt-test"))
	reply, err := g.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply != "I understand, let me help with that." {
		t.Fatalf("reply = %q", reply)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-test" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(100) || gotBody["temperature"] != 0.7 {
		t.Fatalf("unexpected sampling params: %v", gotBody)
	}
}

func TestOpenAIGeneratorQuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`)
	}))
	defer server.Close()

	_, err := NewOpenAIGenerator("sk", WithBaseURL(server.URL)).Generate(context.Background(), nil)
	if !IsQuotaExceeded(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestOpenAIGeneratorRateLimitIsGeneric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
	}))
	defer server.Close()

	_, err := NewOpenAIGenerator("sk", WithBaseURL(server.URL)).Generate(context.Background(), nil)
	if err == nil || IsQuotaExceeded(err) {
		t.Fatalf("expected generic error, got %v", err)
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status code on error, got %v", err)
	}
}

func TestOpenAIGeneratorNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	_, err := NewOpenAIGenerator("sk", WithBaseURL(server.URL)).Generate(context.Background(), nil)
	if KindOf(err) != KindGeneric || err == nil {
		t.Fatalf("expected generic error, got %v", err)
	}
}

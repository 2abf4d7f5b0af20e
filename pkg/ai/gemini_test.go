package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiClientGenerateContent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("missing api key")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{
		  "candidates": [{
		    "content": {"parts": [{"text": "<html>"}, {"text": "</html>"}]},
		    "groundingMetadata": {"groundingChunks": [
		      {"web": {"uri": "https://a.example", "title": "A"}},
		      {},
		      {"web": {"uri": "https://b.example", "title": "B"}}
		    ]}
		  }]
		}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClientWithBaseURL("k", srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	gen := NewGeminiGenerator(client, "models/gemini-2.5-flash")
	resp, err := gen.GenerateContent(context.Background(), ContentRequest{
		SystemInstruction: "sys",
		Parts: []Part{
			{Text: "hello"},
			{InlineData: &Blob{MIMEType: "image/png", Data: []byte{1, 2, 3}}},
		},
		Temperature:  0.4,
		GoogleSearch: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "<html></html>" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if len(resp.GroundingChunks) != 3 || resp.GroundingChunks[1].Web != nil {
		t.Fatalf("unexpected chunks %+v", resp.GroundingChunks)
	}
	if resp.GroundingChunks[2].Web.URI != "https://b.example" {
		t.Fatalf("unexpected chunk order %+v", resp.GroundingChunks)
	}

	contents := got["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	if inline["mimeType"] != "image/png" || inline["data"] != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Fatalf("unexpected inline data %+v", inline)
	}
	tools := got["tools"].([]any)
	if _, ok := tools[0].(map[string]any)["googleSearch"]; !ok {
		t.Fatalf("expected googleSearch tool, got %+v", tools)
	}
	cfg := got["generationConfig"].(map[string]any)
	if cfg["temperature"].(float64) < 0.39 || cfg["temperature"].(float64) > 0.41 {
		t.Fatalf("unexpected temperature %+v", cfg)
	}
	sys := got["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	if sys["text"] != "sys" {
		t.Fatalf("unexpected system instruction %+v", sys)
	}
}

func TestGeminiClientSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	client, _ := NewGeminiClientWithBaseURL("k", srv.URL)
	_, err := client.GenerateContent(context.Background(), "m", ContentRequest{Parts: []Part{{Text: "x"}}})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient("  "); err == nil {
		t.Fatalf("expected error for blank key")
	}
}

func TestGenAIClientGenerateContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
		  "candidates": [{
		    "content": {"role": "model", "parts": [{"text": "ok"}]},
		    "groundingMetadata": {"groundingChunks": [{"web": {"uri": "https://c.example", "title": "C"}}]}
		  }]
		}`))
	}))
	defer srv.Close()

	client, err := NewGenAIClient(context.Background(), "k", "gemini-2.5-flash", srv.URL)
	if err != nil {
		t.Fatalf("new genai client: %v", err)
	}
	resp, err := client.GenerateContent(context.Background(), ContentRequest{
		Parts:        []Part{{Text: "hi"}},
		Temperature:  0.4,
		GoogleSearch: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if len(resp.GroundingChunks) != 1 || resp.GroundingChunks[0].Web.Title != "C" {
		t.Fatalf("unexpected chunks %+v", resp.GroundingChunks)
	}
}

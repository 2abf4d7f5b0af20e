package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Google AI Studio (Gemini) REST API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a client with the provided API key.
func NewGeminiClient(apiKey string) (*GeminiClient, error) {
	return NewGeminiClientWithBaseURL(apiKey, "")
}

// NewGeminiClientWithBaseURL points the client at a non-default endpoint.
func NewGeminiClientWithBaseURL(apiKey, baseURL string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// GenerateContent sends one generateContent request for model.
func (c *GeminiClient) GenerateContent(ctx context.Context, model string, req ContentRequest) (ContentResponse, error) {
	reqBody := generateRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: toWireParts(req.Parts),
			},
		},
		GenerationConfig: &generationConfig{Temperature: req.Temperature},
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		reqBody.SystemInstruction = &content{
			Parts: []part{{Text: req.SystemInstruction}},
		}
	}
	if req.GoogleSearch {
		reqBody.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}
	var resp generateResponse
	if err := c.doJSON(ctx, fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, normalizeModel(model), c.apiKey), reqBody, &resp); err != nil {
		return ContentResponse{}, err
	}
	if len(resp.Candidates) == 0 {
		return ContentResponse{}, nil
	}
	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	out := ContentResponse{Text: sb.String()}
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			gc := GroundingChunk{}
			if chunk.Web != nil {
				gc.Web = &WebChunk{Title: chunk.Web.Title, URI: chunk.Web.URI}
			}
			out.GroundingChunks = append(out.GroundingChunks, gc)
		}
	}
	return out, nil
}

func toWireParts(parts []Part) []part {
	out := make([]part, 0, len(parts))
	for _, p := range parts {
		wp := part{Text: p.Text}
		if p.InlineData != nil {
			wp.InlineData = &inlineData{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
		}
		out = append(out, wp)
	}
	return out
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return model
}

func (c *GeminiClient) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("gemini api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("gemini api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

// GeminiGenerator wraps GeminiClient with a fixed model.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a REST-backed ContentGenerator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// GenerateContent implements ContentGenerator.
func (g *GeminiGenerator) GenerateContent(ctx context.Context, req ContentRequest) (ContentResponse, error) {
	return g.client.GenerateContent(ctx, g.model, req)
}

// Name returns the engine name.
func (g *GeminiGenerator) Name() string {
	return fmt.Sprintf("gemini-rest:%s", normalizeModel(g.model))
}

// inlineData.Data marshals as standard base64, which is what the API expects.
type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature float32 `json:"temperature"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
}

type webChunk struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type groundingChunk struct {
	Web *webChunk `json:"web,omitempty"`
}

type groundingMetadata struct {
	GroundingChunks  []groundingChunk `json:"groundingChunks"`
	WebSearchQueries []string         `json:"webSearchQueries,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content           content            `json:"content"`
		GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

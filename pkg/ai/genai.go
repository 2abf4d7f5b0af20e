package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIClient generates content through the official Google GenAI SDK.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates an SDK-backed ContentGenerator. baseURL is optional.
func NewGenAIClient(ctx context.Context, apiKey, model, baseURL string) (*GenAIClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("GenAI model is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, model: normalizeModel(model)}, nil
}

// GenerateContent implements ContentGenerator.
func (c *GenAIClient) GenerateContent(ctx context.Context, req ContentRequest) (ContentResponse, error) {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.InlineData != nil {
			parts = append(parts, genai.NewPartFromBytes(p.InlineData.Data, p.InlineData.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.GoogleSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("GenAI generate failed: %w", err)
	}

	out := ContentResponse{Text: result.Text()}
	if len(result.Candidates) == 0 || result.Candidates[0] == nil || result.Candidates[0].GroundingMetadata == nil {
		return out, nil
	}
	for _, chunk := range result.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil {
			continue
		}
		gc := GroundingChunk{}
		if chunk.Web != nil {
			gc.Web = &WebChunk{Title: chunk.Web.Title, URI: chunk.Web.URI}
		}
		out.GroundingChunks = append(out.GroundingChunks, gc)
	}
	return out, nil
}

// Name returns the engine name.
func (c *GenAIClient) Name() string {
	return fmt.Sprintf("genai:%s", c.model)
}

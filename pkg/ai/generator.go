package ai

import "context"

// ContentGenerator performs one multimodal generation call.
// The REST client and the SDK client both implement it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req ContentRequest) (ContentResponse, error)
}

// Blob is inline binary content with its declared mime type.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Part is either text or inline data.
type Part struct {
	Text       string
	InlineData *Blob
}

// ContentRequest is a single-turn user request.
type ContentRequest struct {
	SystemInstruction string
	Parts             []Part
	Temperature       float32
	GoogleSearch      bool
}

// WebChunk is the web citation carried by a grounding chunk.
type WebChunk struct {
	Title string
	URI   string
}

// GroundingChunk links generated content to a source. Web is nil for non-web chunks.
type GroundingChunk struct {
	Web *WebChunk
}

// ContentResponse is the first candidate's text and grounding chunks.
type ContentResponse struct {
	Text            string
	GroundingChunks []GroundingChunk
}

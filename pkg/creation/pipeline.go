package creation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"pharmasure/pkg/domain"
	"pharmasure/pkg/generation"
	"pharmasure/pkg/session"
	"pharmasure/pkg/storage"
	"pharmasure/pkg/upload"
)

// ErrGenerationFailed hides the cause of a failed generation from callers.
var ErrGenerationFailed = errors.New("failed to generate content")

// Generator is the part of generation.Client the pipeline needs.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

// Pipeline turns a prompt and optional file into a Creation for one session.
// At most one generation runs at a time.
type Pipeline struct {
	state   *session.State
	gen     Generator
	archive storage.Archive
	now     func() time.Time

	mu         sync.Mutex
	generating bool
}

// NewPipeline builds a pipeline. archive may be nil.
func NewPipeline(state *session.State, gen Generator, archive storage.Archive) *Pipeline {
	return &Pipeline{state: state, gen: gen, archive: archive, now: time.Now}
}

// Generating reports whether a submission is in flight.
func (p *Pipeline) Generating() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generating
}

// Submit runs one generation. It returns false without doing anything when no
// user is signed in or another submission is in flight.
func (p *Pipeline) Submit(ctx context.Context, prompt string, file *upload.File) (domain.Creation, bool, error) {
	user, ok := p.state.User()
	if !ok {
		return domain.Creation{}, false, nil
	}
	p.mu.Lock()
	if p.generating {
		p.mu.Unlock()
		return domain.Creation{}, false, nil
	}
	p.generating = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.generating = false
		p.mu.Unlock()
	}()

	req := generation.Request{Prompt: prompt, User: user}
	var original string
	if file != nil {
		original = file.DataURI()
		req.File = file.Data
		req.MIMEType = file.MIMEType
	}

	res, err := p.gen.Generate(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "creation failed", "email", user.Email, "role", user.Role, "err", err)
		return domain.Creation{}, true, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	now := p.now()
	c := domain.Creation{
		ID:            strconv.FormatInt(now.UnixNano(), 10),
		Name:          Name(user.Role, file),
		HTML:          res.HTML,
		OriginalImage: original,
		Timestamp:     now,
		Sources:       res.Sources,
		DocumentTitle: res.DocumentTitle,
	}
	if file != nil && p.archive != nil {
		key := storage.SourceKey(c.ID, file.Name)
		if err := p.archive.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), file.MIMEType); err != nil {
			slog.WarnContext(ctx, "archive upload failed", "key", key, "err", err)
		} else {
			c.SourceKey = key
		}
	}
	if err := p.state.AddCreation(ctx, c); err != nil {
		// the creation is already in memory; only persistence failed
		slog.ErrorContext(ctx, "persist history failed", "email", user.Email, "err", err)
	}
	slog.InfoContext(ctx, "creation added", "id", c.ID, "name", c.Name, "sources", len(c.Sources))
	return c, true, nil
}

// Name labels a creation by its file, or by the role when there is none.
func Name(role domain.Role, file *upload.File) string {
	if file != nil {
		return "Analysis: " + file.Name
	}
	return "Dashboard: " + string(role)
}

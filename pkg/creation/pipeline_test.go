package creation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmasure/pkg/domain"
	"pharmasure/pkg/generation"
	"pharmasure/pkg/kv"
	"pharmasure/pkg/session"
	"pharmasure/pkg/storage"
	"pharmasure/pkg/upload"
)

type stubGenerator struct {
	mu      sync.Mutex
	reqs    []generation.Request
	results []generation.Result
	err     error
	block   chan struct{}
}

func (s *stubGenerator) Generate(ctx context.Context, req generation.Request) (generation.Result, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return generation.Result{}, s.err
	}
	res := s.results[0]
	s.results = s.results[1:]
	return res, nil
}

func newState(t *testing.T, store kv.Store, user *domain.UserProfile) *session.State {
	t.Helper()
	state, err := session.New(context.Background(), store)
	require.NoError(t, err)
	if user != nil {
		state.Login(*user)
	}
	return state
}

var manufacturer = domain.UserProfile{Name: "Mira", Email: "mira@acme.test", Role: domain.RoleManufacturer, CompanyName: "Acme", FactoryID: "F-1"}

func TestSubmitPrependsMostRecentFirst(t *testing.T) {
	store := kv.NewMemoryStore()
	state := newState(t, store, &manufacturer)
	gen := &stubGenerator{results: []generation.Result{
		{HTML: "<p>1</p>"}, {HTML: "<p>2</p>"}, {HTML: "<p>3</p>", Sources: []domain.Source{{Title: "t", URI: "u"}}},
	}}
	p := NewPipeline(state, gen, nil)
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	p.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	for range 3 {
		_, ok, err := p.Submit(context.Background(), "", nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	history := state.History()
	require.Len(t, history, 3)
	assert.Equal(t, "<p>3</p>", history[0].HTML)
	assert.Equal(t, "<p>1</p>", history[2].HTML)
	assert.Equal(t, "Dashboard: manufacturer", history[0].Name)
	assert.Equal(t, []domain.Source{{Title: "t", URI: "u"}}, history[0].Sources)
	assert.True(t, history[0].Timestamp.After(history[1].Timestamp))

	reloaded := newState(t, store, nil)
	assert.Len(t, reloaded.History(), 3)
	assert.False(t, p.Generating())
}

func TestSubmitWithFile(t *testing.T) {
	state := newState(t, kv.NewMemoryStore(), &manufacturer)
	gen := &stubGenerator{results: []generation.Result{{HTML: "<html></html>", DocumentTitle: "Batch"}}}
	archive := storage.NewMemoryArchive()
	p := NewPipeline(state, gen, archive)

	file, err := upload.New("strip.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	c, ok, err := p.Submit(context.Background(), "verify", file)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "Analysis: strip.png", c.Name)
	assert.True(t, strings.HasPrefix(c.OriginalImage, "data:image/png;base64,"))
	assert.Equal(t, "Batch", c.DocumentTitle)
	assert.Equal(t, "creations/"+c.ID+"/strip.png", c.SourceKey)

	data, ct, found := archive.Object(c.SourceKey)
	require.True(t, found)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", ct)

	require.Len(t, gen.reqs, 1)
	assert.Equal(t, "image/png", gen.reqs[0].MIMEType)
	assert.Equal(t, "verify", gen.reqs[0].Prompt)
}

func TestSubmitIgnoredWhileGenerating(t *testing.T) {
	state := newState(t, kv.NewMemoryStore(), &manufacturer)
	gen := &stubGenerator{block: make(chan struct{}), results: []generation.Result{{HTML: "a"}}}
	p := NewPipeline(state, gen, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok, err := p.Submit(context.Background(), "", nil)
		assert.NoError(t, err)
		assert.True(t, ok)
	}()
	require.Eventually(t, p.Generating, time.Second, time.Millisecond)

	_, ok, err := p.Submit(context.Background(), "", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	close(gen.block)
	<-done
	assert.Len(t, state.History(), 1)
	assert.Len(t, gen.reqs, 1)
}

func TestSubmitFailureLeavesHistory(t *testing.T) {
	state := newState(t, kv.NewMemoryStore(), &manufacturer)
	cause := errors.New("upstream 500")
	p := NewPipeline(state, &stubGenerator{err: cause}, nil)

	_, ok, err := p.Submit(context.Background(), "", nil)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Empty(t, state.History())
	assert.False(t, p.Generating())
}

func TestSubmitWithoutUserIsNoop(t *testing.T) {
	gen := &stubGenerator{}
	p := NewPipeline(newState(t, kv.NewMemoryStore(), nil), gen, nil)
	_, ok, err := p.Submit(context.Background(), "", nil)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, gen.reqs)
}

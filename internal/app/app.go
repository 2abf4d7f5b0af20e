package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"pharmasure/internal/token"
	"pharmasure/pkg/auth"
	"pharmasure/pkg/chat"
	"pharmasure/pkg/creation"
	"pharmasure/pkg/domain"
	"pharmasure/pkg/kv"
	"pharmasure/pkg/session"
	"pharmasure/pkg/storage"
)

// ErrUnauthorized is returned for missing, invalid or ended sessions.
var ErrUnauthorized = errors.New("unauthorized")

// Config holds the collaborators the application is assembled from.
type Config struct {
	Store       kv.Store
	Generator   creation.Generator
	Archive     storage.Archive
	Tokens      *token.Manager
	AuthLatency auth.Latency
	Chat        chat.Config
}

// Session is everything one signed-in client works with.
type Session struct {
	ID       string
	State    *session.State
	Pipeline *creation.Pipeline
	Chat     *chat.Simulator
}

// User returns the profile the session was opened for.
func (s *Session) User() domain.UserProfile {
	u, _ := s.State.User()
	return u
}

// App wires auth, generation, history and chat for live sessions.
type App struct {
	store   kv.Store
	flow    *auth.Flow
	gen     creation.Generator
	archive storage.Archive
	tokens  *token.Manager
	chatCfg chat.Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("kv store is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token manager is required")
	}
	return &App{
		store:    cfg.Store,
		flow:     auth.NewFlow(cfg.Store, cfg.AuthLatency),
		gen:      cfg.Generator,
		archive:  cfg.Archive,
		tokens:   cfg.Tokens,
		chatCfg:  cfg.Chat,
		sessions: make(map[string]*Session),
	}, nil
}

// Login authenticates and opens a session, returning its token.
func (a *App) Login(ctx context.Context, req auth.LoginRequest) (domain.UserProfile, string, error) {
	profile, err := a.flow.Login(ctx, req)
	if err != nil {
		return domain.UserProfile{}, "", err
	}
	tok, err := a.open(ctx, profile)
	if err != nil {
		return domain.UserProfile{}, "", err
	}
	return profile, tok, nil
}

// Signup registers the account and signs it in.
func (a *App) Signup(ctx context.Context, req auth.SignupRequest) (domain.UserProfile, string, error) {
	profile, err := a.flow.Signup(ctx, req)
	if err != nil {
		return domain.UserProfile{}, "", err
	}
	tok, err := a.open(ctx, profile)
	if err != nil {
		return domain.UserProfile{}, "", err
	}
	return profile, tok, nil
}

func (a *App) ResetPassword(ctx context.Context, email string) error {
	return a.flow.ResetPassword(ctx, email)
}

func (a *App) open(ctx context.Context, profile domain.UserProfile) (string, error) {
	state, err := session.New(ctx, kv.Namespace(a.store, profile.Email))
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	state.Login(profile)
	sess := &Session{
		ID:       uuid.NewString(),
		State:    state,
		Pipeline: creation.NewPipeline(state, a.gen, a.archive),
		Chat:     chat.NewSimulator(profile.Role, a.chatCfg),
	}
	tok, _, err := a.tokens.Issue(sess.ID, profile.Email)
	if err != nil {
		sess.Chat.Close()
		return "", err
	}
	a.mu.Lock()
	a.sessions[sess.ID] = sess
	a.mu.Unlock()
	slog.InfoContext(ctx, "session opened", "session", sess.ID, "email", profile.Email, "role", profile.Role)
	return tok, nil
}

// Session resolves a bearer token to its live session.
func (a *App) Session(raw string) (*Session, error) {
	claims, err := a.tokens.Parse(raw)
	if err != nil {
		return nil, ErrUnauthorized
	}
	a.mu.RLock()
	sess, ok := a.sessions[claims.SessionID]
	a.mu.RUnlock()
	if !ok || sess.User().Email != claims.Email {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// Logout ends the session behind raw. Pending chat replies are drained first.
func (a *App) Logout(raw string) error {
	sess, err := a.Session(raw)
	if err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.sessions, sess.ID)
	a.mu.Unlock()
	sess.State.Logout()
	sess.Chat.Close()
	slog.Info("session closed", "session", sess.ID)
	return nil
}

// Close ends every live session.
func (a *App) Close() {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = make(map[string]*Session)
	a.mu.Unlock()
	for _, sess := range sessions {
		sess.State.Logout()
		sess.Chat.Close()
	}
}

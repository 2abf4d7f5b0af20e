package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"pharmasure/pkg/domain"
	"pharmasure/pkg/kv"
)

const (
	demoUserName    = "Demo User"
	demoCompanyName = "Demo Entity"
)

// Latency is the simulated round-trip applied before each operation resolves.
type Latency struct {
	Login  time.Duration
	Signup time.Duration
	Reset  time.Duration
}

// DefaultLatency mirrors the delays of the hosted demo.
func DefaultLatency() Latency {
	return Latency{
		Login:  800 * time.Millisecond,
		Signup: time.Second,
		Reset:  1500 * time.Millisecond,
	}
}

// AccountKey returns the storage key for an account record.
func AccountKey(email string) string {
	return "user_" + email
}

// LoginRequest carries the login form. Role and CompanyName only matter
// when no account exists for Email.
type LoginRequest struct {
	Email       string
	Password    string
	Role        domain.Role
	CompanyName string
}

// SignupRequest carries the signup form.
type SignupRequest struct {
	Name        string
	Email       string
	Password    string
	Role        domain.Role
	CompanyName string
	LicenseID   string
	FactoryID   string
}

// Flow implements mock login, signup and password reset over a key-value store.
type Flow struct {
	store   kv.Store
	latency Latency
	sleep   func(time.Duration)
}

// NewFlow builds a Flow. Negative latencies are treated as zero.
func NewFlow(store kv.Store, latency Latency) *Flow {
	return &Flow{
		store:   store,
		latency: latency,
		sleep:   time.Sleep,
	}
}

func (f *Flow) wait(d time.Duration) {
	if d > 0 {
		f.sleep(d)
	}
}

// Login resolves the profile for an email. An unknown email is not an error:
// a demo profile is fabricated from the form's role and company.
func (f *Flow) Login(ctx context.Context, req LoginRequest) (domain.UserProfile, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return domain.UserProfile{}, ErrMissingFields
	}
	f.wait(f.latency.Login)

	var record domain.AccountRecord
	found, err := kv.GetJSON(ctx, f.store, AccountKey(email), &record)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("load account: %w", err)
	}
	if found {
		if !CheckPassword(req.Password, record.Password) {
			return domain.UserProfile{}, ErrInvalidCredentials
		}
		return record.Profile, nil
	}

	role := req.Role
	if !role.Valid() {
		role = domain.RolePatient
	}
	company := strings.TrimSpace(req.CompanyName)
	if company == "" {
		company = demoCompanyName
	}
	slog.Info("auth.login.demo_fallback", "email", email, "role", role)
	return domain.UserProfile{
		Name:        demoUserName,
		Email:       email,
		Role:        role,
		CompanyName: company,
	}, nil
}

// Signup stores a new account record, overwriting any existing one for the email.
func (f *Flow) Signup(ctx context.Context, req SignupRequest) (domain.UserProfile, error) {
	profile, err := profileFromSignup(req)
	if err != nil {
		return domain.UserProfile{}, err
	}
	f.wait(f.latency.Signup)

	record := domain.AccountRecord{
		Profile:  profile,
		Password: EncodePassword(req.Password),
	}
	if err := kv.SetJSON(ctx, f.store, AccountKey(profile.Email), record); err != nil {
		return domain.UserProfile{}, fmt.Errorf("save account: %w", err)
	}
	return profile, nil
}

// ResetPassword accepts any syntactically valid email. Nothing is changed or delivered.
func (f *Flow) ResetPassword(_ context.Context, email string) error {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	f.wait(f.latency.Reset)
	return nil
}

func profileFromSignup(req SignupRequest) (domain.UserProfile, error) {
	if !req.Role.Valid() {
		return domain.UserProfile{}, ErrInvalidRole
	}
	profile := domain.UserProfile{
		Name:  strings.TrimSpace(req.Name),
		Email: normalizeEmail(req.Email),
		Role:  req.Role,
	}
	if profile.Name == "" || profile.Email == "" || req.Password == "" {
		return domain.UserProfile{}, ErrMissingFields
	}
	company := strings.TrimSpace(req.CompanyName)
	switch req.Role {
	case domain.RolePharmacist:
		profile.CompanyName = company
		profile.LicenseID = strings.TrimSpace(req.LicenseID)
		if profile.CompanyName == "" || profile.LicenseID == "" {
			return domain.UserProfile{}, ErrMissingFields
		}
	case domain.RoleManufacturer:
		profile.CompanyName = company
		profile.FactoryID = strings.TrimSpace(req.FactoryID)
		if profile.CompanyName == "" || profile.FactoryID == "" {
			return domain.UserProfile{}, ErrMissingFields
		}
	}
	return profile, nil
}

// normalizeEmail trims surrounding space only. Case is kept, so the account
// key and any demo profile use the address as entered.
func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// Tab is a state of the auth form.
type Tab string

const (
	TabLogin     Tab = "login"
	TabSignup    Tab = "signup"
	TabReset     Tab = "reset"
	TabResetSent Tab = "reset-sent"
)

// Form tracks which auth tab is showing. Transitions have no guards;
// reset-sent is only entered through a completed reset.
type Form struct {
	mu  sync.Mutex
	tab Tab
}

// NewForm starts on the login tab.
func NewForm() *Form {
	return &Form{tab: TabLogin}
}

// Tab returns the current tab.
func (f *Form) Tab() Tab {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tab
}

// Switch moves to login, signup or reset.
func (f *Form) Switch(tab Tab) error {
	switch tab {
	case TabLogin, TabSignup, TabReset:
	default:
		return fmt.Errorf("cannot switch to %q", tab)
	}
	f.mu.Lock()
	f.tab = tab
	f.mu.Unlock()
	return nil
}

// SubmitReset runs a reset through flow and enters reset-sent on success.
func (f *Form) SubmitReset(ctx context.Context, flow *Flow, email string) error {
	if f.Tab() != TabReset {
		return fmt.Errorf("reset submitted from %q", f.Tab())
	}
	if err := flow.ResetPassword(ctx, email); err != nil {
		return err
	}
	f.mu.Lock()
	f.tab = TabResetSent
	f.mu.Unlock()
	return nil
}

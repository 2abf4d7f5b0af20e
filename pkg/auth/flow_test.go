package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharmasure/pkg/domain"
	"pharmasure/pkg/kv"
)

func newTestFlow() (*Flow, *kv.MemoryStore) {
	store := kv.NewMemoryStore()
	return NewFlow(store, Latency{}), store
}

func TestSignupKeepsOnlyRoleFields(t *testing.T) {
	flow, store := newTestFlow()
	ctx := context.Background()

	cases := []struct {
		role        domain.Role
		wantCompany bool
		wantLicense bool
		wantFactory bool
	}{
		{domain.RolePharmacist, true, true, false},
		{domain.RoleManufacturer, true, false, true},
		{domain.RolePatient, false, false, false},
	}
	for _, tc := range cases {
		email := string(tc.role) + "@example.com"
		_, err := flow.Signup(ctx, SignupRequest{
			Name:        "Asha",
			Email:       email,
			Password:    "pw",
			Role:        tc.role,
			CompanyName: "Acme",
			LicenseID:   "LIC-1",
			FactoryID:   "FAC-9",
		})
		if err != nil {
			t.Fatalf("signup %s: %v", tc.role, err)
		}
		var record domain.AccountRecord
		ok, err := kv.GetJSON(ctx, store, AccountKey(email), &record)
		if err != nil || !ok {
			t.Fatalf("record for %s missing: ok=%v err=%v", tc.role, ok, err)
		}
		p := record.Profile
		if (p.CompanyName != "") != tc.wantCompany {
			t.Fatalf("%s companyName presence mismatch: %+v", tc.role, p)
		}
		if (p.LicenseID != "") != tc.wantLicense {
			t.Fatalf("%s licenseId presence mismatch: %+v", tc.role, p)
		}
		if (p.FactoryID != "") != tc.wantFactory {
			t.Fatalf("%s factoryId presence mismatch: %+v", tc.role, p)
		}
	}
}

func TestSignupRequiresRoleFields(t *testing.T) {
	flow, _ := newTestFlow()
	_, err := flow.Signup(context.Background(), SignupRequest{
		Name: "P", Email: "p@example.com", Password: "pw", Role: domain.RolePharmacist, CompanyName: "Acme",
	})
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	_, err = flow.Signup(context.Background(), SignupRequest{
		Name: "P", Email: "p@example.com", Password: "pw", Role: "admin",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestLoginKnownAccount(t *testing.T) {
	flow, _ := newTestFlow()
	ctx := context.Background()
	signed, err := flow.Signup(ctx, SignupRequest{
		Name: "Ravi", Email: "ravi@example.com", Password: "right", Role: domain.RoleManufacturer,
		CompanyName: "Acme Pharma", FactoryID: "F-7",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	got, err := flow.Login(ctx, LoginRequest{Email: "ravi@example.com", Password: "right", Role: domain.RolePatient})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got != signed {
		t.Fatalf("login profile mismatch: got %+v want %+v", got, signed)
	}

	_, err = flow.Login(ctx, LoginRequest{Email: "ravi@example.com", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmailFabricatesDemoProfile(t *testing.T) {
	flow, store := newTestFlow()
	for _, role := range []domain.Role{domain.RolePatient, domain.RolePharmacist, domain.RoleManufacturer} {
		got, err := flow.Login(context.Background(), LoginRequest{
			Email: "nobody@example.com", Password: "anything", Role: role,
		})
		if err != nil {
			t.Fatalf("unknown email should log in, got %v", err)
		}
		if got.Email != "nobody@example.com" || got.Role != role {
			t.Fatalf("unexpected demo profile %+v", got)
		}
		if got.Name != demoUserName || got.CompanyName != demoCompanyName {
			t.Fatalf("unexpected demo defaults %+v", got)
		}
	}
	if _, ok, _ := store.Get(context.Background(), AccountKey("nobody@example.com")); ok {
		t.Fatalf("demo login must not create an account record")
	}
}

func TestLoginDemoProfileKeepsEnteredEmail(t *testing.T) {
	flow, store := newTestFlow()
	ctx := context.Background()
	got, err := flow.Login(ctx, LoginRequest{Email: "  Asha.Rao@Example.com ", Password: "pw", Role: domain.RolePharmacist})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.Email != "Asha.Rao@Example.com" {
		t.Fatalf("expected entered email, got %q", got.Email)
	}

	if _, err := flow.Signup(ctx, SignupRequest{Name: "Asha", Email: "Asha.Rao@Example.com", Password: "pw", Role: domain.RolePatient}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, ok, _ := store.Get(ctx, AccountKey("Asha.Rao@Example.com")); !ok {
		t.Fatalf("account should be keyed by the entered email")
	}
	// a differently cased address is a different account, so it falls back to a demo profile
	other, err := flow.Login(ctx, LoginRequest{Email: "asha.rao@example.com", Password: "wrong"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if other.Name != demoUserName || other.Email != "asha.rao@example.com" {
		t.Fatalf("unexpected profile %+v", other)
	}
}

func TestSignupOverwritesExistingAccount(t *testing.T) {
	flow, _ := newTestFlow()
	ctx := context.Background()
	req := SignupRequest{Name: "A", Email: "dup@example.com", Password: "one", Role: domain.RolePatient}
	if _, err := flow.Signup(ctx, req); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	req.Name = "B"
	req.Password = "two"
	if _, err := flow.Signup(ctx, req); err != nil {
		t.Fatalf("second signup: %v", err)
	}
	got, err := flow.Login(ctx, LoginRequest{Email: "dup@example.com", Password: "two"})
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if got.Name != "B" {
		t.Fatalf("expected last write to win, got %+v", got)
	}
}

func TestOperationsWaitSimulatedLatency(t *testing.T) {
	store := kv.NewMemoryStore()
	flow := NewFlow(store, Latency{Login: 3 * time.Second, Signup: 2 * time.Second, Reset: time.Second})
	var waited []time.Duration
	flow.sleep = func(d time.Duration) { waited = append(waited, d) }
	ctx := context.Background()

	_, _ = flow.Signup(ctx, SignupRequest{Name: "A", Email: "a@example.com", Password: "pw", Role: domain.RolePatient})
	_, _ = flow.Login(ctx, LoginRequest{Email: "a@example.com", Password: "pw"})
	_ = flow.ResetPassword(ctx, "a@example.com")

	want := []time.Duration{2 * time.Second, 3 * time.Second, time.Second}
	if len(waited) != len(want) {
		t.Fatalf("waited %v, want %v", waited, want)
	}
	for i := range want {
		if waited[i] != want[i] {
			t.Fatalf("waited %v, want %v", waited, want)
		}
	}
}

func TestResetForm(t *testing.T) {
	flow, store := newTestFlow()
	form := NewForm()
	if form.Tab() != TabLogin {
		t.Fatalf("form should start on login, got %s", form.Tab())
	}
	if err := form.SubmitReset(context.Background(), flow, "x@example.com"); err == nil {
		t.Fatalf("reset outside the reset tab should fail")
	}
	if err := form.Switch(TabReset); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if err := form.SubmitReset(context.Background(), flow, "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if err := form.SubmitReset(context.Background(), flow, "ghost@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if form.Tab() != TabResetSent {
		t.Fatalf("expected reset-sent, got %s", form.Tab())
	}
	if _, ok, _ := store.Get(context.Background(), AccountKey("ghost@example.com")); ok {
		t.Fatalf("reset must not create records")
	}
	if err := form.Switch(TabResetSent); err == nil {
		t.Fatalf("reset-sent should not be directly reachable")
	}
}

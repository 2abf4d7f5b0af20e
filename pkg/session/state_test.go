package session

import (
	"context"
	"testing"
	"time"

	"pharmasure/pkg/domain"
	"pharmasure/pkg/kv"
)

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	s, err := New(ctx, store)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ist := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2025, 3, 1, 10, 30, 0, 123, ist)
	var added []domain.Creation
	for i, name := range []string{"first", "second", "third"} {
		c := domain.Creation{
			ID:            name,
			Name:          "Analysis: " + name + ".png",
			HTML:          "<p>" + name + "</p>",
			OriginalImage: "data:image/png;base64,iVBORw0KGgo" + name,
			Timestamp:     ts.Add(time.Duration(i) * time.Minute),
			Sources: []domain.Source{
				{Title: "CDSCO alert " + name, URI: "https://cdsco.gov.in/" + name},
				{Title: "CDSCO alert " + name, URI: "https://cdsco.gov.in/" + name},
			},
			DocumentTitle: "Certificate " + name,
			SourceKey:     "creations/" + name + "/strip.png",
		}
		if i == 1 {
			c.Sources = []domain.Source{}
		}
		if err := s.AddCreation(ctx, c); err != nil {
			t.Fatalf("add: %v", err)
		}
		added = append([]domain.Creation{c}, added...)
	}

	reloaded, err := New(ctx, store)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.History()
	if len(got) != 3 {
		t.Fatalf("expected 3 creations, got %d", len(got))
	}
	for i := range added {
		assertSameCreation(t, added[i], got[i])
	}
	if c, ok := reloaded.Creation("second"); !ok || c.HTML != "<p>second</p>" {
		t.Fatalf("lookup failed: %+v %v", c, ok)
	}
}

func assertSameCreation(t *testing.T, want, got domain.Creation) {
	t.Helper()
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Fatalf("%s timestamp = %v, want %v", want.ID, got.Timestamp, want.Timestamp)
	}
	if got.ID != want.ID || got.Name != want.Name || got.HTML != want.HTML ||
		got.OriginalImage != want.OriginalImage || got.DocumentTitle != want.DocumentTitle ||
		got.SourceKey != want.SourceKey {
		t.Fatalf("creation mismatch:\n got %+v\nwant %+v", got, want)
	}
	if len(got.Sources) != len(want.Sources) {
		t.Fatalf("%s sources = %+v, want %+v", want.ID, got.Sources, want.Sources)
	}
	for i := range want.Sources {
		if got.Sources[i] != want.Sources[i] {
			t.Fatalf("%s source %d = %+v, want %+v", want.ID, i, got.Sources[i], want.Sources[i])
		}
	}
}

func TestHistorySnapshotIsStable(t *testing.T) {
	ctx := context.Background()
	s, _ := New(ctx, kv.NewMemoryStore())
	_ = s.AddCreation(ctx, domain.Creation{ID: "a"})
	snapshot := s.History()
	_ = s.AddCreation(ctx, domain.Creation{ID: "b"})
	if len(snapshot) != 1 || snapshot[0].ID != "a" {
		t.Fatalf("snapshot mutated: %+v", snapshot)
	}
}

func TestUnreadableHistoryIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	_ = store.Set(ctx, HistoryKey, []byte("{not json"))
	s, err := New(ctx, store)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(s.History()) != 0 {
		t.Fatalf("expected empty history")
	}
}

func TestLoginLogout(t *testing.T) {
	s, _ := New(context.Background(), kv.NewMemoryStore())
	if _, ok := s.User(); ok {
		t.Fatalf("expected no user")
	}
	s.Login(domain.UserProfile{Name: "Ravi", Role: domain.RolePatient})
	if u, ok := s.User(); !ok || u.Name != "Ravi" {
		t.Fatalf("unexpected user %+v", u)
	}
	s.Logout()
	if _, ok := s.User(); ok {
		t.Fatalf("expected logout")
	}
}

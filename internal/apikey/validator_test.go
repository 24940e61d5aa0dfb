package apikey

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type fakeStore struct {
	mu         sync.Mutex
	keys       map[string]*store.APIKey
	assistants map[string]*store.Assistant
	lookups    int
	touches    int
	touchErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		keys:       make(map[string]*store.APIKey),
		assistants: make(map[string]*store.Assistant),
	}
}

func (f *fakeStore) APIKeyByHash(_ context.Context, keyHash string) (*store.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	k, ok := f.keys[keyHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (f *fakeStore) PublishedAssistantByUUID(_ context.Context, uuid string, organizationID int64) (*store.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assistants[uuid]
	if !ok || a.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) TouchAPIKeyLastUsed(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return f.touchErr
}

func (f *fakeStore) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func (f *fakeStore) touchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touches
}

func validRawKey() string {
	return Prefix + strings.Repeat("ab", 32)
}

func (f *fakeStore) addKey(raw string, k store.APIKey) *store.APIKey {
	k.KeyHash = Hash(raw)
	f.keys[k.KeyHash] = &k
	return &k
}

func TestGenerateProducesWellFormedKeys(t *testing.T) {
	g, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !WellFormed(g.Raw) {
		t.Fatalf("generated key %q is not well formed", g.Raw)
	}
	if g.Hash != Hash(g.Raw) {
		t.Fatalf("Hash mismatch: %q vs %q", g.Hash, Hash(g.Raw))
	}
	if !strings.HasPrefix(g.Raw, g.DisplayPrefix) {
		t.Fatalf("DisplayPrefix %q is not a prefix of the raw key", g.DisplayPrefix)
	}
	if strings.Contains(Masked(g.DisplayPrefix), g.Raw[len(g.DisplayPrefix):]) {
		t.Fatalf("Masked() leaks key material")
	}
}

func TestValidateKeyRejectsMalformedWithoutLookup(t *testing.T) {
	fs := newFakeStore()
	v := NewValidator(fs, nil)

	for _, raw := range []string{"", "not-a-key", "ak_short", "sk_" + strings.Repeat("ab", 32), Prefix + strings.Repeat("zz", 32)} {
		if _, err := v.ValidateKey(context.Background(), raw); !errors.Is(err, ErrAccessDenied) {
			t.Fatalf("ValidateKey(%q) error = %v, want ErrAccessDenied", raw, err)
		}
	}
	if fs.lookupCount() != 0 {
		t.Fatalf("lookups = %d, want 0 for malformed keys", fs.lookupCount())
	}
}

func TestValidateKeyDeniesUnknownInactiveAndExpired(t *testing.T) {
	fs := newFakeStore()
	v := NewValidator(fs, nil)
	ctx := context.Background()

	inactiveRaw := Prefix + strings.Repeat("01", 32)
	expiredRaw := Prefix + strings.Repeat("02", 32)
	fs.addKey(inactiveRaw, store.APIKey{ID: 1, OrganizationID: 1, Active: false, ExpiresAt: time.Now().Add(time.Hour)})
	fs.addKey(expiredRaw, store.APIKey{ID: 2, OrganizationID: 1, Active: true, ExpiresAt: time.Now().Add(-time.Hour)})

	cases := map[string]string{
		"unknown":  validRawKey(),
		"inactive": inactiveRaw,
		"expired":  expiredRaw,
	}
	for name, raw := range cases {
		if _, err := v.ValidateKey(ctx, raw); !errors.Is(err, ErrAccessDenied) {
			t.Fatalf("%s: ValidateKey() error = %v, want ErrAccessDenied", name, err)
		}
	}
	if got := fs.touchCount(); got != 0 {
		t.Fatalf("touches = %d, want 0 for denied keys", got)
	}
}

func TestValidateKeyTouchesLastUsedAsynchronously(t *testing.T) {
	fs := newFakeStore()
	v := NewValidator(fs, nil)

	raw := validRawKey()
	fs.addKey(raw, store.APIKey{ID: 7, OrganizationID: 1, Active: true, ExpiresAt: time.Now().Add(time.Hour)})

	if _, err := v.ValidateKey(context.Background(), raw); err != nil {
		t.Fatalf("ValidateKey() error = %v", err)
	}
	waitFor(t, func() bool { return fs.touchCount() == 1 })
}

func TestValidateKeySucceedsWhenTouchFails(t *testing.T) {
	fs := newFakeStore()
	fs.touchErr = errors.New("db unavailable")
	v := NewValidator(fs, nil)

	raw := validRawKey()
	fs.addKey(raw, store.APIKey{ID: 7, OrganizationID: 1, Active: true, ExpiresAt: time.Now().Add(time.Hour)})

	key, err := v.ValidateKey(context.Background(), raw)
	if err != nil {
		t.Fatalf("ValidateKey() error = %v, want nil despite touch failure", err)
	}
	if key.ID != 7 {
		t.Fatalf("key.ID = %d, want 7", key.ID)
	}
	waitFor(t, func() bool { return fs.touchCount() == 1 })
}

func TestAuthorizeAssistantScopeResolution(t *testing.T) {
	fs := newFakeStore()
	v := NewValidator(fs, nil)
	ctx := context.Background()

	fs.assistants["a-1"] = &store.Assistant{ID: 10, UUID: "a-1", OrganizationID: 1, Status: store.AssistantPublished, Active: true}
	fs.assistants["a-2"] = &store.Assistant{ID: 11, UUID: "a-2", OrganizationID: 1, Status: store.AssistantPublished, Active: true}
	fs.assistants["other-org"] = &store.Assistant{ID: 12, UUID: "other-org", OrganizationID: 2, Status: store.AssistantPublished, Active: true}

	unrestricted := &store.APIKey{ID: 1, OrganizationID: 1, Active: true, ExpiresAt: time.Now().Add(time.Hour)}
	scoped := &store.APIKey{ID: 2, OrganizationID: 1, Active: true, ExpiresAt: time.Now().Add(time.Hour), AllowedAssistantIDs: []int64{10}}

	if _, err := v.AuthorizeAssistant(ctx, unrestricted, "a-1"); err != nil {
		t.Fatalf("unrestricted key denied a-1: %v", err)
	}
	if _, err := v.AuthorizeAssistant(ctx, unrestricted, "a-2"); err != nil {
		t.Fatalf("unrestricted key denied a-2: %v", err)
	}
	if _, err := v.AuthorizeAssistant(ctx, unrestricted, "other-org"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("cross-tenant assistant error = %v, want ErrAccessDenied", err)
	}

	if _, err := v.AuthorizeAssistant(ctx, scoped, "a-1"); err != nil {
		t.Fatalf("scoped key denied listed assistant: %v", err)
	}
	if _, err := v.AuthorizeAssistant(ctx, scoped, "a-2"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("scoped key allowed unlisted assistant, error = %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

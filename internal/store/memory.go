package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process store for local/dev use and tests.
type MemoryStore struct {
	mu sync.RWMutex

	nextID        int64
	organizations map[int64]*Organization
	users         map[int64]*User
	assistants    map[int64]*Assistant
	voices        map[int64]*Voice
	tools         map[int64]*Tool
	apiKeys       map[int64]*APIKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		organizations: make(map[int64]*Organization),
		users:         make(map[int64]*User),
		assistants:    make(map[int64]*Assistant),
		voices:        make(map[int64]*Voice),
		tools:         make(map[int64]*Tool),
		apiKeys:       make(map[int64]*APIKey),
	}
}

func (s *MemoryStore) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) CreateOrganization(_ context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.UUID == "" {
		org.UUID = uuid.NewString()
	}
	now := time.Now().UTC()
	org.ID = s.nextIDLocked()
	org.CreatedAt = now
	org.UpdatedAt = now
	cp := *org
	s.organizations[org.ID] = &cp
	return nil
}

func (s *MemoryStore) OrganizationByID(_ context.Context, id int64) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.organizations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *MemoryStore) ListOrganizations(_ context.Context, page Page) ([]Organization, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Organization, 0, len(s.organizations))
	for _, org := range s.organizations {
		all = append(all, *org)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	return paginate(all, page), total, nil
}

func (s *MemoryStore) UpdateOrganization(_ context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.organizations[org.ID]
	if !ok {
		return ErrNotFound
	}
	org.UUID = existing.UUID
	org.CreatedAt = existing.CreatedAt
	org.UpdatedAt = time.Now().UTC()
	cp := *org
	s.organizations[org.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteOrganization(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.organizations[id]; !ok {
		return ErrNotFound
	}
	delete(s.organizations, id)
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.ID = s.nextIDLocked()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := cloneUser(u)
	s.users[u.ID] = cp
	return nil
}

func (s *MemoryStore) UserByID(_ context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListUsers(_ context.Context, page Page) ([]User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, *cloneUser(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	return paginate(all, page), total, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for id, other := range s.users {
		if id != u.ID && other.Email == u.Email {
			return ErrConflict
		}
	}
	u.UUID = existing.UUID
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	if u.OrganizationIDs == nil {
		u.OrganizationIDs = existing.OrganizationIDs
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) SetUserOrganizations(_ context.Context, userID int64, orgIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.OrganizationIDs = append([]int64(nil), orgIDs...)
	return nil
}

func (s *MemoryStore) CreateAssistant(_ context.Context, a *Assistant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AssistantDraft
	}
	if a.Details.InteractionMode == "" {
		a.Details.InteractionMode = UserSpeaksFirst
	}
	now := time.Now().UTC()
	a.ID = s.nextIDLocked()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	s.assistants[a.ID] = &cp
	return nil
}

func (s *MemoryStore) AssistantByID(_ context.Context, id int64) (*Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assistants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) AssistantByUUID(_ context.Context, uid string) (*Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assistants {
		if a.UUID == uid {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) PublishedAssistantByUUID(_ context.Context, uid string, organizationID int64) (*Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assistants {
		if a.UUID == uid && a.OrganizationID == organizationID && a.Active && a.Status == AssistantPublished {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListAssistants(_ context.Context, organizationID int64, page Page) ([]Assistant, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []Assistant
	for _, a := range s.assistants {
		if a.OrganizationID == organizationID {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	return paginate(all, page), total, nil
}

func (s *MemoryStore) ListPublishedAssistants(_ context.Context, organizationID int64, allowedIDs []int64) ([]Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := make(map[int64]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	var out []Assistant
	for _, a := range s.assistants {
		if a.OrganizationID != organizationID || !a.Active || a.Status != AssistantPublished {
			continue
		}
		if len(allowedIDs) > 0 && !allowed[a.ID] {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateAssistant(_ context.Context, a *Assistant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.assistants[a.ID]
	if !ok {
		return ErrNotFound
	}
	a.UUID = existing.UUID
	a.OrganizationID = existing.OrganizationID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	s.assistants[a.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteAssistant(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assistants[id]; !ok {
		return ErrNotFound
	}
	delete(s.assistants, id)
	return nil
}

func (s *MemoryStore) CreateVoice(_ context.Context, v *Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.voices {
		if existing.Slug == v.Slug {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	v.ID = s.nextIDLocked()
	v.CreatedAt = now
	v.UpdatedAt = now
	cp := *v
	s.voices[v.ID] = &cp
	return nil
}

func (s *MemoryStore) VoiceByID(_ context.Context, id int64) (*Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.voices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemoryStore) VoiceBySlug(_ context.Context, slug string) (*Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.voices {
		if v.Slug == slug {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListVoices(_ context.Context, filter VoiceFilter, page Page) ([]Voice, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []Voice
	for _, v := range s.voices {
		if !v.Active {
			continue
		}
		if filter.Provider != "" && v.Provider != filter.Provider {
			continue
		}
		if filter.Language != "" && v.Language != filter.Language {
			continue
		}
		if filter.Gender != "" && v.Gender != filter.Gender {
			continue
		}
		if filter.Featured != nil && v.Featured != *filter.Featured {
			continue
		}
		all = append(all, *v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	return paginate(all, page), total, nil
}

func (s *MemoryStore) FeaturedVoices(_ context.Context) ([]Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Voice
	for _, v := range s.voices {
		if v.Active && v.Featured {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateVoice(_ context.Context, v *Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.voices[v.ID]
	if !ok {
		return ErrNotFound
	}
	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	cp := *v
	s.voices[v.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteVoice(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.voices[id]; !ok {
		return ErrNotFound
	}
	delete(s.voices, id)
	return nil
}

func (s *MemoryStore) CreateTool(_ context.Context, t *Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.UUID == "" {
		t.UUID = uuid.NewString()
	}
	if t.ConfigJSON == "" {
		t.ConfigJSON = "{}"
	}
	now := time.Now().UTC()
	t.ID = s.nextIDLocked()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	s.tools[t.ID] = &cp
	return nil
}

func (s *MemoryStore) ToolByID(_ context.Context, id int64) (*Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTools(_ context.Context, organizationID int64, page Page) ([]Tool, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []Tool
	for _, t := range s.tools {
		if t.OrganizationID == organizationID {
			all = append(all, *t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	return paginate(all, page), total, nil
}

func (s *MemoryStore) UpdateTool(_ context.Context, t *Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tools[t.ID]
	if !ok {
		return ErrNotFound
	}
	t.UUID = existing.UUID
	t.OrganizationID = existing.OrganizationID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	s.tools[t.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteTool(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[id]; !ok {
		return ErrNotFound
	}
	delete(s.tools, id)
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, k *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.apiKeys {
		if existing.KeyHash == k.KeyHash {
			return ErrConflict
		}
	}
	if k.AllowedAssistantIDs == nil {
		k.AllowedAssistantIDs = []int64{}
	}
	now := time.Now().UTC()
	k.ID = s.nextIDLocked()
	k.CreatedAt = now
	k.UpdatedAt = now
	s.apiKeys[k.ID] = cloneAPIKey(k)
	return nil
}

func (s *MemoryStore) APIKeyByID(_ context.Context, id int64) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAPIKey(k), nil
}

func (s *MemoryStore) APIKeyByHash(_ context.Context, keyHash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.apiKeys {
		if k.KeyHash == keyHash {
			return cloneAPIKey(k), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListAPIKeysByOrganization(_ context.Context, organizationID int64) ([]APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []APIKey
	for _, k := range s.apiKeys {
		if k.OrganizationID == organizationID {
			out = append(out, *cloneAPIKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateAPIKey(_ context.Context, k *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.apiKeys[k.ID]
	if !ok {
		return ErrNotFound
	}
	k.OrganizationID = existing.OrganizationID
	k.KeyHash = existing.KeyHash
	k.KeyPrefix = existing.KeyPrefix
	k.CreatedAt = existing.CreatedAt
	k.LastUsedAt = existing.LastUsedAt
	k.UpdatedAt = time.Now().UTC()
	if k.AllowedAssistantIDs == nil {
		k.AllowedAssistantIDs = []int64{}
	}
	s.apiKeys[k.ID] = cloneAPIKey(k)
	return nil
}

func (s *MemoryStore) DeleteAPIKey(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[id]; !ok {
		return ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *MemoryStore) TouchAPIKeyLastUsed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	return nil
}

func cloneUser(u *User) *User {
	cp := *u
	cp.OrganizationIDs = append([]int64(nil), u.OrganizationIDs...)
	return &cp
}

func cloneAPIKey(k *APIKey) *APIKey {
	cp := *k
	cp.AllowedAssistantIDs = append([]int64(nil), k.AllowedAssistantIDs...)
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}

func paginate[T any](items []T, page Page) []T {
	page = page.normalized()
	if page.Offset >= len(items) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

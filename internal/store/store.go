package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with an existing one")
)

// Store is the persistence boundary for every admin panel aggregate. The
// bridge only touches APIKeyByHash, TouchAPIKeyLastUsed and
// PublishedAssistantByUUID; everything else serves the CRUD surface.
type Store interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	OrganizationByID(ctx context.Context, id int64) (*Organization, error)
	ListOrganizations(ctx context.Context, page Page) ([]Organization, int, error)
	UpdateOrganization(ctx context.Context, org *Organization) error
	DeleteOrganization(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id int64) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, page Page) ([]User, int, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id int64) error
	SetUserOrganizations(ctx context.Context, userID int64, orgIDs []int64) error

	CreateAssistant(ctx context.Context, a *Assistant) error
	AssistantByID(ctx context.Context, id int64) (*Assistant, error)
	AssistantByUUID(ctx context.Context, uuid string) (*Assistant, error)
	ListAssistants(ctx context.Context, organizationID int64, page Page) ([]Assistant, int, error)
	UpdateAssistant(ctx context.Context, a *Assistant) error
	DeleteAssistant(ctx context.Context, id int64) error
	// PublishedAssistantByUUID is the API-key read path: it only returns
	// assistants that are active, published and owned by organizationID.
	PublishedAssistantByUUID(ctx context.Context, uuid string, organizationID int64) (*Assistant, error)
	ListPublishedAssistants(ctx context.Context, organizationID int64, allowedIDs []int64) ([]Assistant, error)

	CreateVoice(ctx context.Context, v *Voice) error
	VoiceByID(ctx context.Context, id int64) (*Voice, error)
	VoiceBySlug(ctx context.Context, slug string) (*Voice, error)
	ListVoices(ctx context.Context, filter VoiceFilter, page Page) ([]Voice, int, error)
	FeaturedVoices(ctx context.Context) ([]Voice, error)
	UpdateVoice(ctx context.Context, v *Voice) error
	DeleteVoice(ctx context.Context, id int64) error

	CreateTool(ctx context.Context, t *Tool) error
	ToolByID(ctx context.Context, id int64) (*Tool, error)
	ListTools(ctx context.Context, organizationID int64, page Page) ([]Tool, int, error)
	UpdateTool(ctx context.Context, t *Tool) error
	DeleteTool(ctx context.Context, id int64) error

	CreateAPIKey(ctx context.Context, k *APIKey) error
	APIKeyByID(ctx context.Context, id int64) (*APIKey, error)
	APIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error)
	ListAPIKeysByOrganization(ctx context.Context, organizationID int64) ([]APIKey, error)
	UpdateAPIKey(ctx context.Context, k *APIKey) error
	DeleteAPIKey(ctx context.Context, id int64) error
	TouchAPIKeyLastUsed(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close() error
}

// New creates a postgres-backed store when configured, otherwise in-memory.
func New(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}

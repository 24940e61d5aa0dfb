package apikey

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

// ErrAccessDenied is the single failure signal for every validation outcome:
// unknown key, inactive key, expired key and out-of-scope assistant all look
// identical to the caller so nothing leaks about which check failed.
var ErrAccessDenied = errors.New("access denied")

// Store is the narrow read surface the validator needs.
type Store interface {
	APIKeyByHash(ctx context.Context, keyHash string) (*store.APIKey, error)
	PublishedAssistantByUUID(ctx context.Context, uuid string, organizationID int64) (*store.Assistant, error)
	TouchAPIKeyLastUsed(ctx context.Context, id int64) error
}

type Validator struct {
	store Store
	log   *zap.Logger
}

func NewValidator(s Store, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{store: s, log: log}
}

// ValidateKey checks a raw credential and returns its record. The shape check
// runs first so obviously malformed input never costs a lookup.
func (v *Validator) ValidateKey(ctx context.Context, rawKey string) (*store.APIKey, error) {
	if !WellFormed(rawKey) {
		return nil, ErrAccessDenied
	}

	key, err := v.store.APIKeyByHash(ctx, Hash(rawKey))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			v.log.Warn("api key lookup failed", zap.Error(err))
		}
		return nil, ErrAccessDenied
	}
	if !key.Active {
		return nil, ErrAccessDenied
	}
	// A zero expiry means the key never expires.
	if !key.ExpiresAt.IsZero() && time.Now().After(key.ExpiresAt) {
		return nil, ErrAccessDenied
	}

	v.touchLastUsed(key.ID)
	return key, nil
}

// AuthorizeAssistant resolves whether the key may address the assistant and
// returns the configuration snapshot. An empty allow-list means every
// published assistant of the key's organization is permitted.
func (v *Validator) AuthorizeAssistant(ctx context.Context, key *store.APIKey, assistantUUID string) (*store.Assistant, error) {
	assistant, err := v.store.PublishedAssistantByUUID(ctx, assistantUUID, key.OrganizationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			v.log.Warn("assistant lookup failed", zap.Error(err))
		}
		return nil, ErrAccessDenied
	}
	if len(key.AllowedAssistantIDs) > 0 && !containsID(key.AllowedAssistantIDs, assistant.ID) {
		return nil, ErrAccessDenied
	}
	return assistant, nil
}

// Validate is the bridge entry point: credential check followed by scope
// resolution for the requested assistant.
func (v *Validator) Validate(ctx context.Context, rawKey, assistantUUID string) (*store.Assistant, *store.APIKey, error) {
	key, err := v.ValidateKey(ctx, rawKey)
	if err != nil {
		return nil, nil, err
	}
	assistant, err := v.AuthorizeAssistant(ctx, key, assistantUUID)
	if err != nil {
		return nil, nil, err
	}
	return assistant, key, nil
}

// touchLastUsed records key usage without ever blocking or failing the
// connection path.
func (v *Validator) touchLastUsed(id int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := v.store.TouchAPIKeyLastUsed(ctx, id); err != nil {
			v.log.Warn("api key last-used touch failed", zap.Int64("api_key_id", id), zap.Error(err))
		}
	}()
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

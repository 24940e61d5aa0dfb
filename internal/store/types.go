package store

import "time"

// Organization is a tenant. Organizations may nest one level or more via ParentID.
type Organization struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	ShortName string    `json:"short_name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an admin panel account. PasswordHash is never serialized.
type User struct {
	ID              int64     `json:"id"`
	UUID            string    `json:"uuid"`
	Name            string    `json:"name"`
	Surname         string    `json:"surname"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Active          bool      `json:"active"`
	OrganizationIDs []int64   `json:"organization_ids"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type AssistantStatus string

const (
	AssistantDraft     AssistantStatus = "draft"
	AssistantPublished AssistantStatus = "published"
)

// InteractionMode decides who is expected to speak first in a voice session.
type InteractionMode string

const (
	UserSpeaksFirst      InteractionMode = "user_speak_first"
	AssistantSpeaksFirst InteractionMode = "assistant_speak_first"
)

// AssistantDetails is the voice configuration snapshot the bridge reads at
// session establishment.
type AssistantDetails struct {
	FirstMessage      string          `json:"first_message"`
	SystemPrompt      string          `json:"system_prompt"`
	InteractionMode   InteractionMode `json:"interaction_mode"`
	Provider          string          `json:"provider"`
	Model             string          `json:"model"`
	SelectedVoice     string          `json:"selected_voice"`
	Temperature       float64         `json:"temperature"`
	SilenceTimeoutSec int             `json:"silence_timeout_sec"`
	MaxDurationSec    int             `json:"max_duration_sec"`
}

type Assistant struct {
	ID             int64            `json:"id"`
	UUID           string           `json:"uuid"`
	OrganizationID int64            `json:"organization_id"`
	Name           string           `json:"name"`
	Status         AssistantStatus  `json:"status"`
	Active         bool             `json:"active"`
	Details        AssistantDetails `json:"details"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type Voice struct {
	ID         int64     `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	Gender     string    `json:"gender"`
	Language   string    `json:"language"`
	PreviewURL string    `json:"preview_url"`
	Featured   bool      `json:"featured"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Tool struct {
	ID             int64     `json:"id"`
	UUID           string    `json:"uuid"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Kind           string    `json:"kind"`
	ConfigJSON     string    `json:"config_json"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// APIKey stores only the sha256 digest of the issued key. An empty
// AllowedAssistantIDs list means the key may address every assistant of its
// owning organization.
type APIKey struct {
	ID                  int64      `json:"id"`
	OrganizationID      int64      `json:"organization_id"`
	Name                string     `json:"name"`
	KeyHash             string     `json:"-"`
	KeyPrefix           string     `json:"key_prefix"`
	AllowedAssistantIDs []int64    `json:"allowed_assistant_ids"`
	ExpiresAt           time.Time  `json:"expires_at"`
	Active              bool       `json:"active"`
	LastUsedAt          *time.Time `json:"last_used_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// VoiceFilter narrows voice catalog listings.
type VoiceFilter struct {
	Provider string
	Language string
	Gender   string
	Featured *bool
}

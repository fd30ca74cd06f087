// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"
)

// Provider identifies an external OAuth identity provider.
type Provider string

const (
	ProviderGitHub  Provider = "github"
	ProviderDiscord Provider = "discord"
)

// Providers lists every provider an identity can be linked from.
var Providers = []Provider{ProviderGitHub, ProviderDiscord}

// IsValid checks if the provider is one of the supported providers.
func (p Provider) IsValid() bool {
	return p == ProviderGitHub || p == ProviderDiscord
}

// ParseProvider converts a raw provider tag into a Provider.
func ParseProvider(raw string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(raw)))
	return p, p.IsValid()
}

// Account is the user record that owns identities, uploads and conversions.
type Account struct {
	ID              string      `json:"id"`
	Email           string      `json:"email"`
	PrimaryProvider Provider    `json:"primary_provider,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Identities      []*Identity `json:"identities,omitempty"`
}

// Identity links an external provider account to an Account.
type Identity struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Provider       Provider  `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Profile        Profile   `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Email returns the email reported by the provider profile, if any.
func (i *Identity) Email() string {
	if i == nil || i.Profile == nil {
		return ""
	}
	return i.Profile.ProfileEmail()
}

// NormalizeEmail trims and lower-cases an email for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EffectiveEmail resolves the email an identity stands for: the provider
// profile email, or the owning account's email when the profile has none.
func EffectiveEmail(identity *Identity, account *Account) string {
	if email := identity.Email(); email != "" {
		return email
	}
	if account == nil {
		return ""
	}
	return account.Email
}

// Collision describes another account that already holds a (provider, email)
// pair the acting account is trying to link.
type Collision struct {
	ExistingAccountID string    `json:"existing_account_id"`
	ExistingEmail     string    `json:"existing_email"`
	ExistingCreatedAt time.Time `json:"existing_created_at"`
	CurrentCreatedAt  time.Time `json:"current_created_at"`
	UploadCount       int64     `json:"upload_count"`
	ConversionCount   int64     `json:"conversion_count"`
}

// ExistingIsOlder reports whether the colliding account predates the acting one.
func (c *Collision) ExistingIsOlder() bool {
	return c.ExistingCreatedAt.Before(c.CurrentCreatedAt)
}

// Session is a signed-in browser or API session.
type Session struct {
	TokenHash string    `json:"-"`
	AccountID string    `json:"account_id"`
	Provider  Provider  `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true once the session is past its expiry.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// PendingLink is an identity whose link was held back by a collision.
// It is completed after the collision is resolved by merge or replace.
type PendingLink struct {
	AccountID      string    `json:"account_id"`
	Provider       Provider  `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Email          string    `json:"email"`
	ProfileData    []byte    `json:"profile"`
	CreatedAt      time.Time `json:"created_at"`
}

// OAuthState is what a login redirect remembers until its callback.
// LinkAccountID is set when an already signed-in account is linking a provider.
type OAuthState struct {
	Provider      Provider  `json:"provider"`
	LinkAccountID string    `json:"link_account_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsLink reports whether the flow links a provider to an existing account.
func (s *OAuthState) IsLink() bool {
	return s.LinkAccountID != ""
}

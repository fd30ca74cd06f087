package dto

import (
	"time"

	"github.com/fileforge/fileforge/internal/model"
)

// IdentityResponse is a linked provider identity.
type IdentityResponse struct {
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"providerUserId"`
	Email          string    `json:"email,omitempty"`
	DisplayName    string    `json:"displayName,omitempty"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	LinkedAt       time.Time `json:"linkedAt"`
}

// AccountResponse is the signed-in account with its identities.
type AccountResponse struct {
	ID              string             `json:"id"`
	Email           string             `json:"email"`
	PrimaryProvider string             `json:"primaryProvider,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	Identities      []IdentityResponse `json:"identities"`
}

// UserCountResponse is the public user count.
type UserCountResponse struct {
	UserCount int64 `json:"userCount"`
}

// ToAccountResponse converts an Account model to AccountResponse DTO.
func ToAccountResponse(account *model.Account) *AccountResponse {
	identities := make([]IdentityResponse, 0, len(account.Identities))
	for _, identity := range account.Identities {
		resp := IdentityResponse{
			Provider:       string(identity.Provider),
			ProviderUserID: identity.ProviderUserID,
			Email:          identity.Email(),
			LinkedAt:       identity.CreatedAt,
		}
		if identity.Profile != nil {
			resp.DisplayName = identity.Profile.DisplayName()
			resp.AvatarURL = identity.Profile.AvatarURL()
		}
		identities = append(identities, resp)
	}

	return &AccountResponse{
		ID:              account.ID,
		Email:           account.Email,
		PrimaryProvider: string(account.PrimaryProvider),
		CreatedAt:       account.CreatedAt,
		Identities:      identities,
	}
}

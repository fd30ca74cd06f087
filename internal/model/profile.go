package model

import (
	"encoding/json"
	"fmt"
)

// Profile is the provider-side snapshot stored with an identity.
// Each provider has its own concrete shape.
type Profile interface {
	ProfileProvider() Provider
	ProfileEmail() string
	DisplayName() string
	AvatarURL() string
}

// GitHubProfile is the profile shape returned by the GitHub user API.
type GitHubProfile struct {
	ID     int64  `json:"id"`
	Login  string `json:"login"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar_url,omitempty"`
}

func (p *GitHubProfile) ProfileProvider() Provider { return ProviderGitHub }
func (p *GitHubProfile) ProfileEmail() string      { return p.Email }

func (p *GitHubProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Login
}

func (p *GitHubProfile) AvatarURL() string { return p.Avatar }

// DiscordProfile is the profile shape returned by the Discord users/@me API.
type DiscordProfile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Verified   bool   `json:"verified"`
	Avatar     string `json:"avatar,omitempty"`
}

func (p *DiscordProfile) ProfileProvider() Provider { return ProviderDiscord }

// ProfileEmail only trusts verified Discord emails.
func (p *DiscordProfile) ProfileEmail() string {
	if !p.Verified {
		return ""
	}
	return p.Email
}

func (p *DiscordProfile) DisplayName() string {
	if p.GlobalName != "" {
		return p.GlobalName
	}
	return p.Username
}

func (p *DiscordProfile) AvatarURL() string {
	if p.Avatar == "" || p.ID == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", p.ID, p.Avatar)
}

// MarshalProfile encodes a profile for storage.
func MarshalProfile(p Profile) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// UnmarshalProfile decodes a stored profile into the provider's shape.
func UnmarshalProfile(provider Provider, data []byte) (Profile, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}

	var p Profile
	switch provider {
	case ProviderGitHub:
		p = &GitHubProfile{}
	case ProviderDiscord:
		p = &DiscordProfile{}
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s profile: %w", provider, err)
	}
	return p, nil
}

package model

import (
	"testing"
	"time"
)

func TestParseProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw   string
		want  Provider
		valid bool
	}{
		{"github", ProviderGitHub, true},
		{" GitHub ", ProviderGitHub, true},
		{"discord", ProviderDiscord, true},
		{"google", Provider("google"), false},
		{"", Provider(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseProvider(tt.raw)
			if got != tt.want || ok != tt.valid {
				t.Errorf("ParseProvider(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.valid)
			}
		})
	}
}

func TestEffectiveEmail(t *testing.T) {
	t.Parallel()

	account := &Account{ID: "acc-1", Email: "account@example.com"}

	tests := []struct {
		name     string
		identity *Identity
		account  *Account
		want     string
	}{
		{
			name:     "github profile email wins",
			identity: &Identity{Provider: ProviderGitHub, Profile: &GitHubProfile{Email: "gh@example.com"}},
			account:  account,
			want:     "gh@example.com",
		},
		{
			name:     "github profile without email falls back",
			identity: &Identity{Provider: ProviderGitHub, Profile: &GitHubProfile{Login: "octo"}},
			account:  account,
			want:     "account@example.com",
		},
		{
			name:     "verified discord email",
			identity: &Identity{Provider: ProviderDiscord, Profile: &DiscordProfile{Email: "dc@example.com", Verified: true}},
			account:  account,
			want:     "dc@example.com",
		},
		{
			name:     "unverified discord email falls back",
			identity: &Identity{Provider: ProviderDiscord, Profile: &DiscordProfile{Email: "dc@example.com"}},
			account:  account,
			want:     "account@example.com",
		},
		{
			name:     "nil profile",
			identity: &Identity{Provider: ProviderGitHub},
			account:  account,
			want:     "account@example.com",
		},
		{
			name:     "nil account",
			identity: &Identity{Provider: ProviderGitHub},
			account:  nil,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := EffectiveEmail(tt.identity, tt.account); got != tt.want {
				t.Errorf("EffectiveEmail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}

func TestProfile_RoundTripKeepsShape(t *testing.T) {
	t.Parallel()

	data, err := MarshalProfile(&DiscordProfile{ID: "42", Username: "dc", Email: "dc@example.com", Verified: true, Avatar: "abc"})
	if err != nil {
		t.Fatalf("MarshalProfile failed: %v", err)
	}

	p, err := UnmarshalProfile(ProviderDiscord, data)
	if err != nil {
		t.Fatalf("UnmarshalProfile failed: %v", err)
	}

	dp, ok := p.(*DiscordProfile)
	if !ok {
		t.Fatalf("expected *DiscordProfile, got %T", p)
	}
	if dp.AvatarURL() != "https://cdn.discordapp.com/avatars/42/abc.png" {
		t.Errorf("AvatarURL() = %q", dp.AvatarURL())
	}
	if dp.ProfileEmail() != "dc@example.com" {
		t.Errorf("ProfileEmail() = %q", dp.ProfileEmail())
	}
}

func TestUnmarshalProfile_UnknownProvider(t *testing.T) {
	t.Parallel()

	if _, err := UnmarshalProfile(Provider("gitlab"), []byte(`{}`)); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestCollision_ExistingIsOlder(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := &Collision{ExistingCreatedAt: now.Add(-time.Hour), CurrentCreatedAt: now}
	if !c.ExistingIsOlder() {
		t.Error("expected existing account to be older")
	}
}
